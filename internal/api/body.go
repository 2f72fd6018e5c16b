package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const payloadKey = "webhook_payload"

var emptyObject = json.RawMessage(`{}`)

// BodyParser reads the webhook body once and stores it as raw JSON for the
// handler. JSON bodies must be an object or an array, form bodies become an
// object, and an empty body or any other content type counts as {}.
// Malformed bodies are rejected with 400 before reaching the handler.
func BodyParser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
			}

			raw, err := toJSON(c.Request().Header.Get(echo.HeaderContentType), body)
			if err != nil {
				return err
			}

			c.Set(payloadKey, raw)
			return next(c)
		}
	}
}

func payloadFrom(c echo.Context) json.RawMessage {
	raw, ok := c.Get(payloadKey).(json.RawMessage)
	if !ok {
		return emptyObject
	}
	return raw
}

func toJSON(contentType string, body []byte) (json.RawMessage, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	switch mediaType {
	case echo.MIMEApplicationJSON, "":
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 {
			return emptyObject, nil
		}
		if !json.Valid(trimmed) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "JSON body must be an object or an array")
		}
		return json.RawMessage(trimmed), nil

	case echo.MIMEApplicationForm:
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form body").SetInternal(err)
		}
		raw, err := json.Marshal(formObject(values))
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form body").SetInternal(err)
		}
		return raw, nil

	default:
		return emptyObject, nil
	}
}

// formObject nests bracketed form keys, so speech[alternatives][0][transcript]=hi
// becomes {"speech":{"alternatives":[{"transcript":"hi"}]}}
func formObject(values url.Values) map[string]any {
	root := make(map[string]any)
	for key, vals := range values {
		path := formPath(key)
		var value any = vals[len(vals)-1]
		if len(vals) > 1 {
			value = vals
		}

		node := root
		for i, segment := range path {
			if i == len(path)-1 {
				node[segment] = value
				break
			}
			child, ok := node[segment].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[segment] = child
			}
			node = child
		}
	}

	for key, value := range root {
		root[key] = indexedToSlices(value)
	}
	return root
}

// formPath splits a[b][c] into a, b, c. Keys without brackets are one segment.
func formPath(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}

	path := []string{key[:open]}
	for _, segment := range strings.Split(key[open+1:len(key)-1], "][") {
		path = append(path, segment)
	}
	return path
}

// indexedToSlices turns maps keyed 0..n-1 into arrays
func indexedToSlices(value any) any {
	node, ok := value.(map[string]any)
	if !ok {
		return value
	}

	for key, child := range node {
		node[key] = indexedToSlices(child)
	}

	indexes := make([]int, 0, len(node))
	for key := range node {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 {
			return node
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for want, got := range indexes {
		if want != got {
			return node
		}
	}
	if len(indexes) == 0 {
		return node
	}

	list := make([]any, len(indexes))
	for _, i := range indexes {
		list[i] = node[strconv.Itoa(i)]
	}
	return list
}
