package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 4 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into v and validates it. It writes the
// problem response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return false
	}
	if reflect.Indirect(reflect.ValueOf(v)).Kind() != reflect.Struct {
		return true
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string][]string, len(verrs))
			for _, fe := range verrs {
				key := fe.Namespace()
				if i := strings.Index(key, "."); i >= 0 {
					key = key[i+1:]
				}
				fields[key] = append(fields[key], fmt.Sprintf("failed %s", fe.Tag()))
			}
			WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", fields)
			return false
		}
		WriteProblem(w, http.StatusBadRequest, "validation failed", err.Error(), nil)
		return false
	}
	return true
}
