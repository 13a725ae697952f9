package service

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/model"
)

//go:embed schema/userdata.schema.json
var userDataSchemaJSON []byte

const userDataSchemaURL = "https://habit-rewards.local/schema/userdata.schema.json"

var (
	userDataSchemaOnce sync.Once
	userDataSchema     *jsonschema.Schema
	userDataSchemaErr  error
)

func compiledUserDataSchema() (*jsonschema.Schema, error) {
	userDataSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(userDataSchemaJSON))
		if err != nil {
			userDataSchemaErr = fmt.Errorf("parsing user data schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(userDataSchemaURL, doc); err != nil {
			userDataSchemaErr = fmt.Errorf("adding user data schema: %w", err)
			return
		}
		userDataSchema, userDataSchemaErr = c.Compile(userDataSchemaURL)
	})
	return userDataSchema, userDataSchemaErr
}

// DecodeUserData validates raw against the aggregate schema and returns the
// normalized aggregate (nil lists become empty, negative credits clamp to 0).
func DecodeUserData(raw []byte) (*model.UserData, error) {
	sch, err := compiledUserDataSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return nil, apperror.ValidationFailed("body", err.Error())
	}

	var data model.UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperror.ValidationFailed("body", err.Error())
	}
	data.Normalize()
	return &data, nil
}
