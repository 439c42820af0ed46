package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"os/exec"
	"regexp"
	"strings"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// Pre-compiled patterns for classifying bridge stderr. The last exception
// line of a traceback ("pkg.mod.FeatureError: message") names the failure.
var (
	reExceptionLine = regexp.MustCompile(`(?m)^((?:[A-Za-z_][A-Za-z0-9_]*\.)*[A-Z][A-Za-z0-9_]*): (.*)$`)

	reMissingFile = regexp.MustCompile(
		`(?i)No such file or directory|unable to open file|Unable to synchronously open file`)
)

// exceptionKinds maps bridge exception type names (without module prefix)
// to error kinds. Unlisted names are internal errors.
var exceptionKinds = map[string]ephys.Kind{
	"FeatureError":      ephys.KindFeature,
	"ValueError":        ephys.KindValue,
	"TypeError":         ephys.KindType,
	"KeyError":          ephys.KindKey,
	"IndexError":        ephys.KindKey,
	"FileNotFoundError": ephys.KindIO,
	"OSError":           ephys.KindIO,
	"IOError":           ephys.KindIO,
	"PermissionError":   ephys.KindIO,
}

// KindForException returns the error kind for an exception type name such
// as "KeyError" or "ipfx.error.FeatureError".
func KindForException(name string) ephys.Kind {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if k, ok := exceptionKinds[name]; ok {
		return k
	}
	return ephys.KindInternal
}

type errorDoc struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// structuredError returns the error carried in a {"error": {...}} stdout
// document, or nil if stdout is not one.
func structuredError(stdout []byte) error {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, []byte(`"error"`)) {
		return nil
	}
	var doc errorDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil || doc.Error == nil {
		return nil
	}
	return &ephys.Error{Kind: KindForException(doc.Error.Type), Message: doc.Error.Message}
}

// ClassifyStderr turns the stderr of a failed bridge run into an
// *ephys.Error. runErr is the error returned by the process.
func ClassifyStderr(stderr string, runErr error) error {
	if errors.Is(runErr, exec.ErrNotFound) {
		return &ephys.Error{Kind: ephys.KindInternal, Message: "analysis bridge not found", Err: runErr}
	}
	if m := reExceptionLine.FindAllStringSubmatch(stderr, -1); len(m) > 0 {
		last := m[len(m)-1]
		return &ephys.Error{Kind: KindForException(last[1]), Message: strings.TrimSpace(last[2]), Err: runErr}
	}
	if reMissingFile.MatchString(stderr) {
		return &ephys.Error{Kind: ephys.KindIO, Message: lastLine(stderr), Err: runErr}
	}
	msg := lastLine(stderr)
	if msg == "" && runErr != nil {
		msg = runErr.Error()
	}
	return &ephys.Error{Kind: ephys.KindInternal, Message: msg, Err: runErr}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
