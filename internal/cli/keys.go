package cli

import "fmt"

type KeysCmd struct {
	Prefix string `help:"Only list keys starting with this prefix."`
}

func (c *KeysCmd) Run(ctx *Context) error {
	keys, err := ctx.Maintenance.ListKeys(ctx.Ctx, c.Prefix)
	if err != nil {
		return err
	}
	return ctx.print(keys)
}

type GetCmd struct {
	Key string `arg:"" help:"Key to read."`
}

// Run prints the raw value, not wrapped in JSON or YAML.
func (c *GetCmd) Run(ctx *Context) error {
	value, err := ctx.Maintenance.GetKey(ctx.Ctx, c.Key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.Out, value)
	return err
}

type SetCmd struct {
	Key   string `arg:"" help:"Key to write."`
	Value string `arg:"" help:"Value, stored verbatim."`
}

func (c *SetCmd) Run(ctx *Context) error {
	if err := ctx.Maintenance.SetKey(ctx.Ctx, c.Key, c.Value); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ctx.Out, "set %s\n", c.Key)
	return err
}

type DelCmd struct {
	Key string `arg:"" help:"Key to delete."`
}

func (c *DelCmd) Run(ctx *Context) error {
	if err := ctx.Maintenance.DeleteKey(ctx.Ctx, c.Key); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ctx.Out, "deleted %s\n", c.Key)
	return err
}
