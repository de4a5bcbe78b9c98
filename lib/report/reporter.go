package report

import (
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
)

// Reporter announces detected changes, whether a command runs or not.
type Reporter struct {
	console *Console
	message *pathtmpl.Template
}

// NewReporter returns a reporter printing message for every change. A nil
// message disables change lines.
func NewReporter(c *Console, message *pathtmpl.Template) *Reporter {
	return &Reporter{console: c, message: message}
}

func (r *Reporter) Report(vars pathtmpl.Vars) {
	if r.message == nil {
		return
	}
	r.console.Println(r.message.Render(vars))
}
