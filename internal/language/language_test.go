package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Code
	}{
		{"hebrew question", "מה עושים באזעקה?", Hebrew},
		{"mixed latin and hebrew", "What is ממ\"ד?", Hebrew},
		{"single hebrew point", "shelter \u05b0", Hebrew},
		{"block upper bound", "x\u05ff", Hebrew},
		{"english", "What do I do during a siren?", English},
		{"empty", "", English},
		{"arabic is not detected", "ماذا أفعل عند صفارة الإنذار؟", English},
		{"russian is not detected", "Что делать при сирене?", English},
		{"just below block", "\u058f", English},
		{"just above block", "\u0600", English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, Hebrew, Parse("he"))
	assert.Equal(t, English, Parse("en"))
	assert.Equal(t, English, Parse("ar"))
}
