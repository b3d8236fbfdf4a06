package main

import (
	"context"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/operations"
)

// terminalConfirmer prompts the user on the terminal. Pipelines receive it
// as their Confirmer; force bypasses it inside the pipeline.
func terminalConfirmer() operations.Confirmer {
	return func(_ context.Context, message string) (bool, error) {
		confirmed := false
		prompt := &survey.Confirm{
			Message: message,
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return false, errors.Wrap(err, "confirmation prompt failed")
		}
		return confirmed, nil
	}
}
