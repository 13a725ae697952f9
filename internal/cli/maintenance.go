package cli

type InventoryCmd struct{}

func (c *InventoryCmd) Run(ctx *Context) error {
	inv, err := ctx.Maintenance.Inventory(ctx.Ctx)
	if err != nil {
		return err
	}
	return ctx.print(inv)
}

// CleanupCmd merges duplicate profiles that share an email.
type CleanupCmd struct {
	DryRun bool `help:"Report what would change without writing."`
}

func (c *CleanupCmd) Run(ctx *Context) error {
	report, err := ctx.Maintenance.CleanupDuplicates(ctx.Ctx, c.DryRun)
	if err != nil {
		return err
	}
	return ctx.print(report)
}

// MigrateCmd moves email-keyed data blobs to id-keyed ones.
type MigrateCmd struct {
	DryRun bool `help:"Report what would change without writing."`
}

func (c *MigrateCmd) Run(ctx *Context) error {
	report, err := ctx.Maintenance.MigrateEmailKeys(ctx.Ctx, c.DryRun)
	if err != nil {
		return err
	}
	return ctx.print(report)
}
