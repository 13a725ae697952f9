// Package cli implements the habitctl commands. Each command is a kong
// struct with a Run(*Context) method; cmd/habitctl only parses flags and
// builds the Context.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sakif/habit-rewards/internal/service"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Context is passed to every command's Run.
type Context struct {
	Ctx         context.Context
	Maintenance *service.MaintenanceService
	Out         io.Writer
	Format      string
}

// print writes v in the selected format. YAML output goes through JSON first
// so both formats use the same field names.
func (c *Context) print(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	if c.Format != FormatYAML {
		_, err = fmt.Fprintln(c.Out, string(raw))
		return err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	enc := yaml.NewEncoder(c.Out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return enc.Close()
}
