package document

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/memomind/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(questionAnswerInRange, Question{})
	})
	return validate
}

// questionAnswerInRange requires Answer to index an existing option.
func questionAnswerInRange(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	if q.Answer >= len(q.Options) {
		sl.ReportError(q.Answer, "Answer", "answer", "answer_in_options", "")
	}
}

// Validate checks a document variant against its declared constraints.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// check validates a decoded response; failures are UNEXPECTED_FORMAT.
func check(v any) error {
	if err := Validate(v); err != nil {
		return errors.NewUnexpectedFormat(err.Error())
	}
	return nil
}

// ValidateDocument checks a document before it is sent; failures are
// INVALID_REQUEST.
func ValidateDocument(d Document) error {
	payload := d.Payload()
	if payload == nil {
		return errors.NewInvalidRequest("document is empty")
	}
	if err := Validate(payload); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	return nil
}
