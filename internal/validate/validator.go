// Package validate turns raw POST /posts bodies into store.NewPost values.
//
// The field rules live in an embedded CUE schema (newpost.cue). Decode
// checks every field and reports all violations at once, in a fixed field
// order, so responses are deterministic.
package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/postd/internal/store"
)

//go:embed newpost.cue
var schemaSource string

// Field names, in reporting order.
const (
	FieldBody    = "body"
	FieldContent = "content"
	FieldEmail   = "email"
)

var fieldOrder = []string{FieldContent, FieldEmail}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks request bodies against the compiled #NewPost schema.
//
// Thread-safety: safe for concurrent use. CUE values are not, so schema
// evaluation is serialized behind mu.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()

	file := ctx.CompileString(schemaSource, cue.Filename("newpost.cue"))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("compile newpost schema: %w", err)
	}

	schema := file.LookupPath(cue.ParsePath("#NewPost"))
	if !schema.Exists() {
		return nil, fmt.Errorf("newpost schema: #NewPost not defined")
	}

	return &Validator{ctx: ctx, schema: schema}, nil
}

// Decode parses body and validates it.
//
// On success the returned NewPost carries the normalized email and the
// content byte-for-byte. Otherwise the FieldErrors list every problem found:
// a malformed body yields a single "body" error, and field errors come in
// the order content, email.
func (v *Validator) Decode(body []byte) (store.NewPost, []FieldError) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return store.NewPost{}, []FieldError{{Field: FieldBody, Message: "must be a JSON object"}}
	}

	if email, ok := raw[FieldEmail].(string); ok {
		raw[FieldEmail] = NormalizeEmail(email)
	}

	var errs []FieldError
	for _, field := range fieldOrder {
		if msg := v.checkField(field, raw[field]); msg != "" {
			errs = append(errs, FieldError{Field: field, Message: msg})
		}
	}
	if len(errs) > 0 {
		return store.NewPost{}, errs
	}

	return store.NewPost{
		Content: raw[FieldContent].(string),
		Email:   raw[FieldEmail].(string),
	}, nil
}

// Check validates an already-decoded post, as the command line builds one.
// The returned NewPost carries the normalized email.
func (v *Validator) Check(np store.NewPost) (store.NewPost, []FieldError) {
	np.Email = NormalizeEmail(np.Email)

	var errs []FieldError
	if msg := v.checkField(FieldContent, np.Content); msg != "" {
		errs = append(errs, FieldError{Field: FieldContent, Message: msg})
	}
	if msg := v.checkField(FieldEmail, np.Email); msg != "" {
		errs = append(errs, FieldError{Field: FieldEmail, Message: msg})
	}
	if len(errs) > 0 {
		return store.NewPost{}, errs
	}

	return np, nil
}

// checkField unifies one JSON value with its schema field and returns a
// client-facing message, or "" if the value is acceptable.
func (v *Validator) checkField(field string, value any) string {
	if value == nil {
		return "is required"
	}

	s, isString := value.(string)
	if !isString {
		return "must be a string"
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	constraint := v.schema.LookupPath(cue.ParsePath(field))
	if err := constraint.Unify(v.ctx.Encode(s)).Validate(cue.Concrete(true)); err == nil {
		return ""
	}

	switch field {
	case FieldContent:
		return "must not be empty"
	case FieldEmail:
		return "invalid: " + s
	default:
		return "is invalid"
	}
}

// NormalizeEmail canonicalizes an address so that equivalent spellings map
// to the same user: Unicode NFC, surrounding whitespace trimmed, lowercased.
//
// Lowercasing, unlike full case folding, keeps characters such as "ß"
// distinct from their multi-letter folds.
func NormalizeEmail(email string) string {
	email = norm.NFC.String(email)
	email = strings.TrimSpace(email)
	return cases.Lower(language.Und).String(email)
}
