package roster

import "github.com/nerrad567/bulles-portal/internal/results"

// ClassName is the single class the portal serves.
const ClassName = "CE1"

// AdminUsername is the staff account seeded when an admin password is set.
const AdminUsername = "admin"

// pupil is a roster entry before its password is hashed.
type pupil struct {
	id       string
	password string
	fullName string
}

var pupils = []pupil{
	{"CE1-001", "fifame", "AGBLO AGONDJIHOSSOU Fifamè"},
	{"CE1-002", "emmanuel", "AKYOH Emmanuel"},
	{"CE1-003", "yinki", "Yinki"},
	{"CE1-004", "rahama", "Rahama"},
	{"CE1-005", "noham", "Noham"},
	{"CE1-006", "queen", "Queen"},
	{"CE1-007", "mekaddishem", "Mékaddishem"},
	{"CE1-008", "faith", "Faith"},
	{"CE1-009", "peniel", "Péniel"},
	{"CE1-010", "naelle", "Naelle"},
}

func reports() []results.Report {
	return []results.Report{
		{
			StudentID:     "CE1-001",
			Trimester:     1,
			Average:       14.61,
			Rank:          3,
			TotalStudents: 10,
			Mention:       "Satisfaisant",
			Comment:       "Félicitations pour ton tableau d'encouragement++. Continue tes efforts en dictée et en expression écrite.",
			Evolution:     "+5.2%",
			Notes: []results.Note{
				{Subject: "Lecture", Score: 19, Appreciation: "Excellent"},
				{Subject: "ES", Score: 18.25, Appreciation: "Excellent"},
				{Subject: "EPS", Score: 18, Appreciation: "Excellent"},
				{Subject: "Mathématiques", Score: 16.75, Appreciation: "Très bien"},
				{Subject: "Ateliers", Score: 17, Appreciation: "Très bien"},
				{Subject: "Poésie", Score: 15, Appreciation: "Bien"},
				{Subject: "EA Dessin", Score: 12, Appreciation: "Passable"},
				{Subject: "Anglais", Score: 11, Appreciation: "Passable"},
				{Subject: "Expression Écrite", Score: 11, Appreciation: "Passable"},
				{Subject: "EST", Score: 13.75, Appreciation: "Bien"},
				{Subject: "Dictée", Score: 9, Appreciation: "À améliorer"},
			},
		},
		{
			StudentID:     "CE1-002",
			Trimester:     1,
			Average:       10.45,
			Rank:          10,
			TotalStudents: 10,
			Mention:       "À améliorer",
			Comment:       "Des efforts sont nécessaires, particulièrement en mathématiques et en dictée. Travail régulier recommandé.",
			Evolution:     "-2.1%",
			Notes: []results.Note{
				{Subject: "Ateliers", Score: 17, Appreciation: "Très bien"},
				{Subject: "ES", Score: 15.25, Appreciation: "Bien"},
				{Subject: "EPS", Score: 15, Appreciation: "Bien"},
				{Subject: "Poésie", Score: 14, Appreciation: "Bien"},
				{Subject: "EA Dessin", Score: 13, Appreciation: "Passable"},
				{Subject: "Expression Écrite", Score: 10.25, Appreciation: "Passable"},
				{Subject: "EST", Score: 8.25, Appreciation: "À améliorer"},
				{Subject: "Lecture", Score: 7.75, Appreciation: "À améliorer"},
				{Subject: "Anglais", Score: 7.5, Appreciation: "À améliorer"},
				{Subject: "Mathématiques", Score: 5, Appreciation: "Insuffisant"},
				{Subject: "Dictée", Score: 2, Appreciation: "Insuffisant"},
			},
		},
	}
}
