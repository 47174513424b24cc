package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academy/core"
)

var (
	questionChoicesTag  = "qchoices"
	questionChoicesText = "a question needs at least 2 choices"

	correctChoiceTag  = "qcorrect"
	correctChoiceText = "a question needs exactly one correct choice"

	noChoicesTag  = "nochoices"
	noChoicesText = "an explanation cannot have choices"

	minQuestionChoices = 2
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(contentStructValidation, NewContent{})
	core.RegisterCustomTranslation(validate, translator, questionChoicesTag, questionChoicesText)
	core.RegisterCustomTranslation(validate, translator, correctChoiceTag, correctChoiceText)
	core.RegisterCustomTranslation(validate, translator, noChoicesTag, noChoicesText)
}

// contentStructValidation checks the choices of a NewContent against its kind.
func contentStructValidation(sl validator.StructLevel) {
	nc := sl.Current().Interface().(NewContent)
	reportErr := func(tag string) {
		sl.ReportError(nc.Choices, "choices", "Choices", tag, "")
	}

	switch nc.Kind {
	case ContentExplanation:
		if len(nc.Choices) > 0 {
			reportErr(noChoicesTag)
		}
	case ContentQuestion:
		if len(nc.Choices) < minQuestionChoices {
			reportErr(questionChoicesTag)
			return
		}
		var correct int
		for _, ch := range nc.Choices {
			if ch.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			reportErr(correctChoiceTag)
		}
	}
}
