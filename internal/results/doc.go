// Package results holds trimester report cards and the class analytics
// derived from them.
//
// Scores are on the French 0-20 scale. A note without an appreciation is
// given one from Appreciation when the report is saved.
package results
