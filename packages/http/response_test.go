package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponse_HeaderCaseInsensitive(t *testing.T) {
	resp := &Response{Headers: map[string]string{"content-type": "application/json; charset=utf-8"}}

	assert.Equal(t, "application/json; charset=utf-8", resp.Header("Content-Type"))
	assert.True(t, resp.HasHeader("CONTENT-TYPE"))
	assert.True(t, resp.IsJSON())
}

func TestResponse_BodyValue(t *testing.T) {
	jsonResp := &Response{Body: []byte(`[{"id":1},{"id":2}]`)}
	assert.Equal(t, int64(2), jsonResp.JSON().Get("#").Int())
	assert.Len(t, jsonResp.BodyValue(), 2)

	textResp := &Response{Headers: map[string]string{"content-type": "text/plain"}, Body: []byte("not json")}
	assert.Equal(t, "not json", textResp.BodyValue())
}

func TestResponse_StatusClasses(t *testing.T) {
	assert.True(t, (&Response{StatusCode: 201}).IsSuccess())
	assert.True(t, (&Response{StatusCode: 404}).IsClientError())
	assert.True(t, (&Response{StatusCode: 500}).IsServerError())
}
