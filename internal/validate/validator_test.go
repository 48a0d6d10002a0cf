package validate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/postd/internal/store"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestDecode_Valid(t *testing.T) {
	v := newTestValidator(t)

	np, errs := v.Decode([]byte(`{"content":"hello","email":"a@example.com"}`))
	require.Empty(t, errs)
	assert.Equal(t, store.NewPost{Content: "hello", Email: "a@example.com"}, np)
}

func TestDecode_ContentKeptVerbatim(t *testing.T) {
	v := newTestValidator(t)

	np, errs := v.Decode([]byte(`{"content":"  <b>Hi</b>\n","email":"a@example.com"}`))
	require.Empty(t, errs)
	assert.Equal(t, "  <b>Hi</b>\n", np.Content)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	v := newTestValidator(t)

	_, errs := v.Decode([]byte(`{"content":"x","email":"a@example.com","extra":1}`))
	assert.Empty(t, errs)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []FieldError
	}{
		{
			name: "malformed json",
			body: `{"content":`,
			want: []FieldError{{Field: "body", Message: "must be a JSON object"}},
		},
		{
			name: "array body",
			body: `["hello"]`,
			want: []FieldError{{Field: "body", Message: "must be a JSON object"}},
		},
		{
			name: "empty body",
			body: ``,
			want: []FieldError{{Field: "body", Message: "must be a JSON object"}},
		},
		{
			name: "empty object",
			body: `{}`,
			want: []FieldError{
				{Field: "content", Message: "is required"},
				{Field: "email", Message: "is required"},
			},
		},
		{
			name: "null body",
			body: `null`,
			want: []FieldError{
				{Field: "content", Message: "is required"},
				{Field: "email", Message: "is required"},
			},
		},
		{
			name: "empty content",
			body: `{"content":"","email":"a@example.com"}`,
			want: []FieldError{{Field: "content", Message: "must not be empty"}},
		},
		{
			name: "invalid email",
			body: `{"content":"hi","email":"not-an-email"}`,
			want: []FieldError{{Field: "email", Message: "invalid: not-an-email"}},
		},
		{
			name: "email without domain dot",
			body: `{"content":"hi","email":"a@localhost"}`,
			want: []FieldError{{Field: "email", Message: "invalid: a@localhost"}},
		},
		{
			name: "both invalid in field order",
			body: `{"email":"nope","content":""}`,
			want: []FieldError{
				{Field: "content", Message: "must not be empty"},
				{Field: "email", Message: "invalid: nope"},
			},
		},
		{
			name: "wrong types",
			body: `{"content":42,"email":true}`,
			want: []FieldError{
				{Field: "content", Message: "must be a string"},
				{Field: "email", Message: "must be a string"},
			},
		},
		{
			name: "null field",
			body: `{"content":null,"email":"a@example.com"}`,
			want: []FieldError{{Field: "content", Message: "is required"}},
		},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			np, errs := v.Decode([]byte(tt.body))
			assert.Equal(t, tt.want, errs)
			assert.Equal(t, store.NewPost{}, np)
		})
	}
}

func TestDecode_NormalizesEmail(t *testing.T) {
	v := newTestValidator(t)

	np, errs := v.Decode([]byte(`{"content":"x","email":"  Alice@Example.COM "}`))
	require.Empty(t, errs)
	assert.Equal(t, "alice@example.com", np.Email)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a@example.com", "a@example.com"},
		{"A@Example.Com", "a@example.com"},
		{"\ta@example.com\n", "a@example.com"},
		// "e" + combining acute composes to U+00E9.
		{"jose\u0301@example.com", "jos\u00e9@example.com"},
		{"JOS\u00c9@example.com", "jos\u00e9@example.com"},
		{"Stra\u00dfe@example.com", "stra\u00dfe@example.com"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in), "NormalizeEmail(%q)", tt.in)
	}
}

func TestNormalizeEmail_KeepsDistinctAddressesApart(t *testing.T) {
	sharp := NormalizeEmail("stra\u00dfe@example.com")
	plain := NormalizeEmail("strasse@example.com")

	assert.NotEqual(t, plain, sharp, "lowercasing must not merge \u00df with ss")
	assert.Equal(t, "stra\u00dfe@example.com", sharp, "stored address keeps the client's letters")
}

func TestFieldError_Error(t *testing.T) {
	err := FieldError{Field: "content", Message: "must not be empty"}
	assert.EqualError(t, err, "content: must not be empty")
}

func TestDecode_ConcurrentUse(t *testing.T) {
	v := newTestValidator(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"content":"ok","email":"a@example.com"}`
			if i%2 == 1 {
				body = `{"content":"","email":"a@example.com"}`
			}
			_, errs := v.Decode([]byte(body))
			if i%2 == 1 {
				assert.Len(t, errs, 1)
			} else {
				assert.Empty(t, errs)
			}
		}(i)
	}
	wg.Wait()
}

func TestCheck(t *testing.T) {
	v := newTestValidator(t)

	np, errs := v.Check(store.NewPost{Content: "hi", Email: " Bob@Example.com"})
	require.Empty(t, errs)
	assert.Equal(t, store.NewPost{Content: "hi", Email: "bob@example.com"}, np)

	_, errs = v.Check(store.NewPost{})
	assert.Equal(t, []FieldError{
		{Field: "content", Message: "must not be empty"},
		{Field: "email", Message: "invalid: "},
	}, errs)
}
