package browser

import (
	"encoding/json"
	"fmt"
)

// ScriptOp identifies what a Script does.
type ScriptOp int

const (
	// OpSetTitle sets document.title to Args[0].
	OpSetTitle ScriptOp = iota

	// OpClick dispatches a click on the element with id Args[0].
	OpClick

	// OpBack navigates one step back in history.
	OpBack

	// OpTagAnchor sets id Args[1] on the first anchor whose resolved href
	// equals Args[0].
	OpTagAnchor
)

// Script is a page script issued by a Session. Engines that execute
// JavaScript run Source(); test engines may interpret Op and Args instead.
// Every script evaluates to a boolean: false means its target was missing.
type Script struct {
	Op   ScriptOp
	Args []string
}

// TitleScript returns a script that sets the document title.
func TitleScript(title string) Script {
	return Script{Op: OpSetTitle, Args: []string{title}}
}

// ClickScript returns a script that dispatches a mouse click on the element
// with the given id.
func ClickScript(id string) Script {
	return Script{Op: OpClick, Args: []string{id}}
}

// BackScript returns a script that goes one step back in history.
func BackScript() Script {
	return Script{Op: OpBack}
}

// TagAnchorScript returns a script that sets id on the first anchor whose
// resolved href property equals href.
func TagAnchorScript(href, id string) Script {
	return Script{Op: OpTagAnchor, Args: []string{href, id}}
}

// Source returns the JavaScript for the script.
func (s Script) Source() string {
	switch s.Op {
	case OpSetTitle:
		return fmt.Sprintf(`(() => { document.title = %s; return true; })()`, jsString(s.arg(0)))
	case OpClick:
		return fmt.Sprintf(`(() => {
	const el = document.getElementById(%s);
	if (!el) { return false; }
	el.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true, view: window}));
	return true;
})()`, jsString(s.arg(0)))
	case OpBack:
		return `(() => { history.go(-1); return true; })()`
	case OpTagAnchor:
		return fmt.Sprintf(`(() => {
	for (const a of document.getElementsByTagName("a")) {
		if (a.href === %s) { a.setAttribute("id", %s); return true; }
	}
	return false;
})()`, jsString(s.arg(0)), jsString(s.arg(1)))
	default:
		return "false"
	}
}

// String returns a short description used in logs.
func (s Script) String() string {
	switch s.Op {
	case OpSetTitle:
		return "set-title"
	case OpClick:
		return "click"
	case OpBack:
		return "back"
	case OpTagAnchor:
		return "tag-anchor"
	default:
		return "unknown"
	}
}

func (s Script) arg(i int) string {
	if i < len(s.Args) {
		return s.Args[i]
	}
	return ""
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
