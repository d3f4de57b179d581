package sessionguard

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Captcha is a simple addition challenge shown before a login is submitted.
type Captcha struct {
	A, B int
}

// NewCaptcha draws a challenge with both operands in 1..10.
func NewCaptcha() Captcha {
	return Captcha{A: rand.IntN(10) + 1, B: rand.IntN(10) + 1} //nolint:gosec // not a security boundary
}

// Question renders the challenge, e.g. "3 + 7 = ?".
func (c Captcha) Question() string {
	return fmt.Sprintf("%d + %d = ?", c.A, c.B)
}

// Verify reports whether answer is the sum.
func (c Captcha) Verify(answer string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	return err == nil && n == c.A+c.B
}
