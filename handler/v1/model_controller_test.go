package v1_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/entity"

	"github.com/stretchr/testify/assert"
)

func TestModelAPI(t *testing.T) {
	_, model := seedCompletedRun(t, 1.0)

	t.Run("List Models", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/models?page=1&page_size=10", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var result entity.PageResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Total >= 1)
	})

	t.Run("Filter Models", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/models?architecture=dense&model_status=READY", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var result entity.PageResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Total >= 1)
	})

	t.Run("Get Model By Version", func(t *testing.T) {
		w := performRequest(testRouter, "GET", fmt.Sprintf("/v1/models/%s", model.Version), nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp entity.ModelRecord
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, model.ID, resp.ID)
		assert.Equal(t, entity.ModelStatusReady, resp.Status)
	})

	t.Run("Get Model Unknown Version", func(t *testing.T) {
		w := performRequest(testRouter, "GET", "/v1/models/no_such_version", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
