// Package validate implements the Step Validator (§4.6): walks a step
// sequence and returns every error found in one pass rather than
// failing fast, so a caller sees the full set of problems with a step
// sequence before anything executes. Grounded on
// github.com/go-playground/validator/v10 (struct-tag validation for
// the well-specified step contracts in internal/steps) plus hand
// -written cross-field and enum checks the library can't express.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cdpstep/cdpstep/internal/resolver"
	"github.com/cdpstep/cdpstep/internal/steps"
)

var validatorInstance = newValidatorInstance()

func newValidatorInstance() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ref", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		return resolver.RefPattern.MatchString(s)
	})
	return v
}

// StepErrors collects every problem found with one step.
type StepErrors struct {
	Index  int      `json:"index"`
	Step   string   `json:"step"`
	Errors []string `json:"errors"`
}

// Result is the §4.6 return shape.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []StepErrors `json:"errors"`
}

// Request validates every step in a parsed request. It never panics
// (validator totality, §8): a step that fails to even parse as an
// object still produces a StepErrors entry rather than aborting the
// walk.
func Request(req steps.Request) Result {
	result := Result{Valid: true, Errors: []StepErrors{}}

	if len(req.Steps) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, StepErrors{Index: -1, Step: "", Errors: []string{"steps must be a non-empty array"}})
		return result
	}
	if req.Timeout < 0 {
		result.Valid = false
		result.Errors = append(result.Errors, StepErrors{Index: -1, Step: "", Errors: []string{"timeout must be non-negative"}})
	}

	for i, raw := range req.Steps {
		step, parseErrs := steps.Parse(i, raw)
		var errs []string
		errs = append(errs, parseErrs...)
		if step.Action != "" {
			errs = append(errs, validateParams(step.Action, step.Params)...)
		}
		if len(errs) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, StepErrors{Index: i, Step: string(step.Action), Errors: errs})
		}
	}
	return result
}

func validateParams(action steps.Action, raw json.RawMessage) []string {
	switch action {
	case steps.ActionClick, steps.ActionPress, steps.ActionSleep, steps.ActionSnapshot:
		// Bare shorthands ("click": "#a", "press": "Enter", "sleep": 500,
		// "snapshot": true) that the executors accept besides the object form.
		if len(raw) > 0 && raw[0] != '{' {
			return validateGeneric(raw)
		}
	}
	switch action {
	case steps.ActionGoto:
		return validateGoto(raw)
	case steps.ActionClick:
		return validateStruct(raw, &steps.ClickParams{}, requireOneOfClick)
	case steps.ActionFill:
		return validateStruct(raw, &steps.FillParams{}, requireOneOfFill)
	case steps.ActionSnapshot:
		return validateStruct(raw, &steps.SnapshotParams{}, nil)
	case steps.ActionDrag:
		return validateStruct(raw, &steps.DragParams{}, requireEndpoints)
	case steps.ActionEval:
		return validateEval(raw)
	case steps.ActionPoll:
		return validateStruct(raw, &steps.PollParams{}, nil)
	case steps.ActionCookies:
		return validateStruct(raw, &steps.CookiesParams{}, requireOneOfCookies)
	case steps.ActionElementsAt:
		return validateStruct(raw, &steps.ElementsAtParams{}, requirePointOrRadius)
	case steps.ActionScroll:
		return validateStruct(raw, &steps.ScrollParams{}, nil)
	case steps.ActionViewport:
		return validateStruct(raw, &steps.ViewportParams{}, nil)
	case steps.ActionPress:
		return validateStruct(raw, &steps.PressParams{}, nil)
	case steps.ActionWait:
		return validateWait(raw)
	case steps.ActionSleep:
		return validateStruct(raw, &steps.SleepParams{}, nil)
	default:
		return validateGeneric(raw)
	}
}

// validateStruct decodes raw into dst then runs library validation
// plus an optional extra cross-field check.
func validateStruct(raw json.RawMessage, dst any, extra func(any) []string) []string {
	if len(raw) == 0 {
		return []string{"missing parameters"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return []string{fmt.Sprintf("malformed parameters: %v", err)}
	}
	var errs []string
	if err := validatorInstance.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: %s", fe.Field(), describeTag(fe)))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}
	if extra != nil {
		errs = append(errs, extra(dst)...)
	}
	return errs
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "ref":
		return "must match ^s\\d+e\\d+$"
	default:
		return "failed " + fe.Tag()
	}
}

// validateGoto normalizes the bare-string form ("goto": "http://x")
// before running struct validation, since §4.5 allows both shapes.
func validateGoto(raw json.RawMessage) []string {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		if bare == "" {
			return []string{"url is required"}
		}
		normalized, _ := json.Marshal(steps.GotoParams{URL: bare})
		return validateStruct(normalized, &steps.GotoParams{}, nil)
	}
	return validateStruct(raw, &steps.GotoParams{}, nil)
}

func validateWait(raw json.RawMessage) []string {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		if bare == "" {
			return []string{"selector or text is required"}
		}
		return nil
	}
	return validateStruct(raw, &steps.WaitParams{}, requireSelectorOrText)
}

func requireSelectorOrText(v any) []string {
	p := v.(*steps.WaitParams)
	if (p.Selector == "") == (p.Text == "") {
		return []string{"exactly one of selector or text is required"}
	}
	return nil
}

func validateEval(raw json.RawMessage) []string {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		if bare == "" {
			return []string{"expression is required"}
		}
		return nil
	}
	return validateStruct(raw, &steps.EvalParams{}, nil)
}

func requireOneOfClick(v any) []string {
	p := v.(*steps.ClickParams)
	set := 0
	if p.Selector != "" {
		set++
	}
	if p.Ref != "" {
		set++
	}
	if p.Text != "" {
		set++
	}
	if len(p.Selectors) > 0 {
		set++
	}
	if p.X != nil && p.Y != nil {
		set++
	}
	if set != 1 {
		return []string{"exactly one of selector, ref, text, selectors, or {x,y} is required"}
	}
	return nil
}

func requireOneOfFill(v any) []string {
	p := v.(*steps.FillParams)
	set := 0
	if p.Selector != "" {
		set++
	}
	if p.Ref != "" {
		set++
	}
	if p.Label != "" {
		set++
	}
	if set != 1 {
		return []string{"exactly one of selector, ref, or label is required"}
	}
	return nil
}

func requireEndpoints(v any) []string {
	p := v.(*steps.DragParams)
	var errs []string
	if endpointEmpty(p.Source) {
		errs = append(errs, "source must set selector, ref, or {x,y}")
	}
	if endpointEmpty(p.Target) {
		errs = append(errs, "target must set selector, ref, or {x,y}")
	}
	return errs
}

func endpointEmpty(e steps.DragEndpoint) bool {
	return e.Selector == "" && e.Ref == "" && !(e.X != nil && e.Y != nil)
}

func requireOneOfCookies(v any) []string {
	p := v.(*steps.CookiesParams)
	set := 0
	if p.Get != nil {
		set++
	}
	if p.Set != nil {
		set++
	}
	if p.Clear != nil {
		set++
	}
	if p.Delete != nil {
		set++
	}
	if set != 1 {
		return []string{"exactly one of get, set, clear, or delete is required"}
	}
	return nil
}

func requirePointOrRadius(v any) []string {
	p := v.(*steps.ElementsAtParams)
	if p.X == nil || p.Y == nil {
		return []string{"x and y are required"}
	}
	return nil
}

// validateGeneric covers the loosely-specified actions (§6: "the
// others follow the same pattern... enumerated options, non-negative
// numerics, string selectors"): it accepts an object, a boolean, a
// string or a non-negative number without looking further, and rejects
// anything else (a negative number, an array), since these actions
// don't have a committed struct shape to validate further against.
func validateGeneric(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var asObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObj); err == nil {
		return nil
	}
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return nil
	}
	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		return nil
	}
	var asNum float64
	if err := json.Unmarshal(raw, &asNum); err == nil {
		if asNum < 0 {
			return []string{"numeric parameter must be non-negative"}
		}
		return nil
	}
	return []string{"malformed parameters"}
}
