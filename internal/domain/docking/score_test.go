package docking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/dockpipe/pkg/errors"
)

const vinaOutput = `MODEL 1
REMARK VINA RESULT:    -7.3      0.000      0.000
REMARK INTER + INTRA:          -9.112
ROOT
ATOM      1  C   UNL     1       1.000   2.000   3.000  0.00  0.00    +0.000 C
ENDROOT
ENDMDL
MODEL 2
REMARK VINA RESULT:    -6.9      1.412      2.003
ENDMDL
`

func TestParsePositional_VinaOutput(t *testing.T) {
	p := NewScoreParser(ScoreModePositional, nil)
	v, err := p.Parse(strings.NewReader(vinaOutput))
	require.NoError(t, err)
	assert.Equal(t, -7.3, v)
}

func TestParsePositional_FreeEnergyLine(t *testing.T) {
	input := "header\nEstimated Free Energy of Binding: -7.3 (kcal/mol)\n"
	for _, mode := range []ScoreMode{ScoreModePositional, ScoreModeLabel} {
		v, err := NewScoreParser(mode, []string{"Estimated Free Energy of Binding"}).Parse(strings.NewReader(input))
		require.NoError(t, err, mode)
		assert.Equal(t, -7.3, v, mode)
	}
}

func TestParsePositional_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"single line", "MODEL 1\n"},
		{"empty", ""},
		{"no colon", "MODEL 1\nREMARK nothing here\n"},
		{"not a number", "MODEL 1\nREMARK VINA RESULT: abc 0.0\n"},
		{"empty segment", "MODEL 1\nREMARK:\n"},
	}
	p := NewScoreParser(ScoreModePositional, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeScoreParseFailed))
		})
	}
}

func TestParseLabel_FindsLabelAnywhere(t *testing.T) {
	input := "REMARK generated by a newer engine\nREMARK extra header\nMODEL 1\nREMARK VINA RESULT:    -9.25   0.000   0.000\n"
	p := NewScoreParser(ScoreModeLabel, []string{"REMARK VINA RESULT:"})

	v, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, -9.25, v)

	_, err = NewScoreParser(ScoreModePositional, nil).Parse(strings.NewReader(input))
	assert.Error(t, err, "positional contract reads the wrong line")
}

func TestParseLabel_FirstMatchingLineWins(t *testing.T) {
	p := NewScoreParser(ScoreModeLabel, []string{"REMARK VINA RESULT:"})
	v, err := p.Parse(strings.NewReader(vinaOutput))
	require.NoError(t, err)
	assert.Equal(t, -7.3, v)
}

func TestParseLabel_FallsBackToPositional(t *testing.T) {
	p := NewScoreParser(ScoreModeLabel, []string{"NO SUCH LABEL"})
	v, err := p.Parse(strings.NewReader("x\nscore: -4.5\n"))
	require.NoError(t, err)
	assert.Equal(t, -4.5, v)
}

func TestParseLabel_UnparsableLabelKeepsScanning(t *testing.T) {
	p := NewScoreParser(ScoreModeLabel, []string{"RESULT:"})
	v, err := p.Parse(strings.NewReader("header\nRESULT: pending\nRESULT: -3.0\n"))
	require.NoError(t, err)
	assert.Equal(t, -3.0, v)
}

func TestParseLabel_ScoreLineWinsOverLaterLabel(t *testing.T) {
	input := "MODEL 1\nREMARK minimizedAffinity: -7.3 kcal\nATOM\nEstimated Free Energy of Binding: -6.0\n"
	p := NewScoreParser(ScoreModeLabel, []string{"REMARK VINA RESULT:", "Estimated Free Energy of Binding"})
	v, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, -7.3, v)
}

func TestParseLabel_NoScoreKeepsPositionalError(t *testing.T) {
	p := NewScoreParser(ScoreModeLabel, []string{"REMARK VINA RESULT:"})
	_, err := p.Parse(strings.NewReader("MODEL 1\nREMARK nothing here\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScoreParseFailed))
}

func TestParse_RejectsNonFiniteScores(t *testing.T) {
	for _, raw := range []string{"nan", "NaN", "inf", "-Inf", "Infinity"} {
		t.Run(raw, func(t *testing.T) {
			input := "MODEL 1\nREMARK VINA RESULT: " + raw + " 0 0\n"
			for _, mode := range []ScoreMode{ScoreModePositional, ScoreModeLabel} {
				_, err := NewScoreParser(mode, []string{"REMARK VINA RESULT:"}).Parse(strings.NewReader(input))
				require.Error(t, err, mode)
				assert.True(t, errors.IsCode(err, errors.ErrCodeScoreParseFailed), mode)
			}
		})
	}
}

func TestNewScoreParser_UnknownModeIsLabel(t *testing.T) {
	p := NewScoreParser(ScoreMode("regex"), nil)
	assert.Equal(t, ScoreModeLabel, p.mode)
}
