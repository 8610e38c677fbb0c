// Package steps defines the step data model (§3 Step, §6 step schema):
// a tagged variant over the 46 recognized actions, deserialized by
// hand so that exactly one unrecognized or duplicated action key
// surfaces as a precise error rather than a generic decode failure —
// per the redesign notes' "dynamically-shaped step objects" guidance.
package steps

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Action is one of the exhaustive recognized step actions (§6).
type Action string

const (
	ActionGoto             Action = "goto"
	ActionReload           Action = "reload"
	ActionWait             Action = "wait"
	ActionSleep            Action = "sleep"
	ActionClick            Action = "click"
	ActionFill             Action = "fill"
	ActionPress            Action = "press"
	ActionQuery            Action = "query"
	ActionQueryAll         Action = "queryAll"
	ActionInspect          Action = "inspect"
	ActionScroll           Action = "scroll"
	ActionConsole          Action = "console"
	ActionPDF              Action = "pdf"
	ActionEval             Action = "eval"
	ActionSnapshot         Action = "snapshot"
	ActionSnapshotSearch   Action = "snapshotSearch"
	ActionHover            Action = "hover"
	ActionViewport         Action = "viewport"
	ActionCookies          Action = "cookies"
	ActionBack             Action = "back"
	ActionForward          Action = "forward"
	ActionWaitForNav       Action = "waitForNavigation"
	ActionListTabs         Action = "listTabs"
	ActionCloseTab         Action = "closeTab"
	ActionNewTab           Action = "newTab"
	ActionSwitchTab        Action = "switchTab"
	ActionType             Action = "type"
	ActionSelectText       Action = "selectText"
	ActionSelectOption     Action = "selectOption"
	ActionSubmit           Action = "submit"
	ActionAssert           Action = "assert"
	ActionFrame            Action = "frame"
	ActionDrag             Action = "drag"
	ActionFormState        Action = "formState"
	ActionExtract          Action = "extract"
	ActionGet              Action = "get"
	ActionGetDom           Action = "getDom"
	ActionGetBox           Action = "getBox"
	ActionGetURL           Action = "getUrl"
	ActionGetTitle         Action = "getTitle"
	ActionFillActive       Action = "fillActive"
	ActionElementsAt       Action = "elementsAt"
	ActionPageFunction     Action = "pageFunction"
	ActionPoll             Action = "poll"
	ActionWriteSiteProfile Action = "writeSiteProfile"
	ActionReadSiteProfile  Action = "readSiteProfile"
)

// Names is the exhaustive set of recognized action keys.
var Names = map[Action]bool{
	ActionGoto: true, ActionReload: true, ActionWait: true, ActionSleep: true,
	ActionClick: true, ActionFill: true, ActionPress: true, ActionQuery: true,
	ActionQueryAll: true, ActionInspect: true, ActionScroll: true, ActionConsole: true,
	ActionPDF: true, ActionEval: true, ActionSnapshot: true, ActionSnapshotSearch: true,
	ActionHover: true, ActionViewport: true, ActionCookies: true, ActionBack: true,
	ActionForward: true, ActionWaitForNav: true, ActionListTabs: true, ActionCloseTab: true,
	ActionNewTab: true, ActionSwitchTab: true, ActionType: true, ActionSelectText: true,
	ActionSelectOption: true, ActionSubmit: true, ActionAssert: true, ActionFrame: true,
	ActionDrag: true, ActionFormState: true, ActionExtract: true, ActionGet: true,
	ActionGetDom: true, ActionGetBox: true, ActionGetURL: true, ActionGetTitle: true,
	ActionFillActive: true, ActionElementsAt: true, ActionPageFunction: true,
	ActionPoll: true, ActionWriteSiteProfile: true, ActionReadSiteProfile: true,
}

var commonFields = map[string]bool{
	"optional": true, "readyWhen": true, "settledWhen": true, "observe": true,
}

// Step is one parsed (but not yet validated) step: exactly one action
// key plus the common StepEnvelope fields the redesign notes describe.
type Step struct {
	Index       int
	Action      Action
	Params      json.RawMessage
	Optional    bool
	ReadyWhen   string
	SettledWhen string
	Observe     string
}

// Parse decodes a raw JSON step object, separating the common envelope
// fields from the single action key. It never panics; malformed shape
// is reported as errors rather than an error return, so a caller
// validating a whole request can collect every step's problems in one
// pass (§4.6 "returns all errors at once").
func Parse(index int, raw json.RawMessage) (Step, []string) {
	step := Step{Index: index}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return step, []string{fmt.Sprintf("step %d is not a JSON object: %v", index, err)}
	}

	if v, ok := m["optional"]; ok {
		_ = json.Unmarshal(v, &step.Optional)
		delete(m, "optional")
	}
	if v, ok := m["readyWhen"]; ok {
		_ = json.Unmarshal(v, &step.ReadyWhen)
		delete(m, "readyWhen")
	}
	if v, ok := m["settledWhen"]; ok {
		_ = json.Unmarshal(v, &step.SettledWhen)
		delete(m, "settledWhen")
	}
	if v, ok := m["observe"]; ok {
		_ = json.Unmarshal(v, &step.Observe)
		delete(m, "observe")
	}

	var found []string
	for k := range m {
		if Names[Action(k)] {
			found = append(found, k)
		}
	}
	sort.Strings(found)

	var errs []string
	switch len(found) {
	case 0:
		errs = append(errs, fmt.Sprintf("step %d: no recognized action key", index))
	case 1:
		step.Action = Action(found[0])
		step.Params = m[found[0]]
		delete(m, found[0])
		for k := range m {
			if !commonFields[k] {
				errs = append(errs, fmt.Sprintf("step %d: unrecognized field %q", index, k))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("step %d: multiple action keys present: %v", index, found))
	}
	return step, errs
}

// Request is the top-level command-line contract (§6.1).
type Request struct {
	Tab     string            `json:"tab,omitempty"`
	Timeout int               `json:"timeout,omitempty"`
	Steps   []json.RawMessage `json:"steps"`
}
