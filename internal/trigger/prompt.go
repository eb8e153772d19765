package trigger

import (
	"context"
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/songzhibin97/tokenlens/internal/models"
)

// SurveyPrompter asks on the terminal.
type SurveyPrompter struct{}

func (SurveyPrompter) Prompt(ctx context.Context, message string) (string, error) {
	var answer string
	prompt := &survey.Input{
		Message: message,
		Help:    "A ticker such as $BNB or ETH, or a 0x-prefixed contract address",
	}

	err := survey.AskOne(prompt, &answer, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		return ValidateManualInput(str)
	}))
	if errors.Is(err, terminal.InterruptErr) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// ValidateManualInput accepts blank input (cancel), contract addresses and any
// symbol short enough to search for.
func ValidateManualInput(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || models.IsContractAddress(s) || len(models.StripMarker(s)) <= 32 {
		return nil
	}
	return errors.New("input too long for a ticker or contract address")
}

var _ Prompter = SurveyPrompter{}
