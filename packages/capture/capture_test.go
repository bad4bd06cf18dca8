package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createdUser() *http.Response {
	return &http.Response{
		StatusCode: 201,
		Headers: map[string]string{
			"content-type": "application/json",
			"location":     "/users/11",
		},
		Body:     []byte(`{"id": 11, "name": "John", "tags": ["qa", "ops"], "manager": null}`),
		Duration: 42 * time.Millisecond,
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		subject string
		source  Source
		path    string
	}{
		{"body", SourceBody, ""},
		{"body.id", SourceBody, "id"},
		{"body.tags[1]", SourceBody, "tags.1"},
		{"body[0].id", SourceBody, "0.id"},
		{"header Location", SourceHeader, "Location"},
		{"header.location", SourceHeader, "location"},
		{"status", SourceStatus, ""},
		{"duration", SourceDuration, ""},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			c, err := Parse("value", tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.source, c.Source)
			assert.Equal(t, tt.path, c.Path)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("id", "cookies.session")
	assert.Error(t, err)

	_, err = Parse("user.id", "body.id")
	assert.Error(t, err)

	_, err = Parse("loc", "header ")
	assert.Error(t, err)
}

func TestExtractAll(t *testing.T) {
	var captures []*Capture
	for name, subject := range map[string]string{
		"id":       "body.id",
		"second":   "body.tags[1]",
		"location": "header Location",
		"status":   "status",
		"manager":  "body.manager",
		"missing":  "body.nope",
	} {
		c, err := Parse(name, subject)
		require.NoError(t, err)
		captures = append(captures, c)
	}

	values, missing := ExtractAll(createdUser(), captures)

	assert.Equal(t, float64(11), values["id"])
	assert.Equal(t, "ops", values["second"])
	assert.Equal(t, "/users/11", values["location"])
	assert.Equal(t, 201, values["status"])
	assert.Equal(t, []string{"manager", "missing"}, missing)
}

func TestExtract_NonJSONBody(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Headers: map[string]string{"content-type": "text/plain"}, Body: []byte("token-xyz")}
	extractor := NewExtractor(resp)

	v, ok := extractor.Extract(&Capture{Name: "raw", Source: SourceBody})
	assert.True(t, ok)
	assert.Equal(t, "token-xyz", v)

	_, ok = extractor.Extract(&Capture{Name: "id", Source: SourceBody, Path: "id"})
	assert.False(t, ok)
}

func TestNamespace_WriteOnce(t *testing.T) {
	ns := NewNamespace()
	require.NoError(t, ns.Set("create-user", "id", float64(11)))

	err := ns.Set("create-user", "id", float64(12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyCaptured))

	v, ok := ns.Get("create-user.id")
	require.True(t, ok)
	assert.Equal(t, float64(11), v.Value)
	assert.Equal(t, "create-user", v.Case)
	assert.Equal(t, "create-user.id", v.Key())
}

func TestNamespace_Missing(t *testing.T) {
	ns := NewNamespace()
	require.NoError(t, ns.SetAll("login", map[string]any{"token": "t", "user": "u"}))

	assert.Equal(t, 2, ns.Len())
	assert.Nil(t, ns.Missing([]string{"login.token", "login.user"}))
	assert.Equal(t, []string{"signup.id"}, ns.Missing([]string{"login.token", "signup.id"}))
}

func TestNamespace_ConcurrentWriters(t *testing.T) {
	ns := NewNamespace()
	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- ns.Set("case", "id", i)
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, ns.Len())
}

func TestFormat_RoundTripsIdentically(t *testing.T) {
	values, _ := ExtractAll(createdUser(), []*Capture{
		{Name: "id", Source: SourceBody, Path: "id"},
		{Name: "name", Source: SourceBody, Path: "name"},
		{Name: "tags", Source: SourceBody, Path: "tags"},
	})

	assert.Equal(t, "11", Format(values["id"]))
	assert.Equal(t, "John", Format(values["name"]))
	assert.Equal(t, `["qa","ops"]`, Format(values["tags"]))

	assert.Equal(t, "1234567890123", Format(float64(1234567890123)))
	assert.Equal(t, "0.5", Format(0.5))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, "", Format(nil))
}

func TestSplitRef(t *testing.T) {
	c, n, ok := SplitRef("create-user.id")
	assert.True(t, ok)
	assert.Equal(t, "create-user", c)
	assert.Equal(t, "id", n)

	c, n, ok = SplitRef("v1.users.id")
	assert.True(t, ok)
	assert.Equal(t, "v1.users", c)
	assert.Equal(t, "id", n)

	_, _, ok = SplitRef("token")
	assert.False(t, ok)
	_, _, ok = SplitRef("case.")
	assert.False(t, ok)
}
