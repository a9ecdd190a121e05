/*
Package cli provides command-line helpers for the gatehouse command.

Output Formatting:

Commands that list things build a Table and let the --format flag pick
the renderer:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	table := &cli.Table{
		Headers: []string{"ID", "HOST"},
		Rows:    rows,
		Source:  entries,
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table)

Text output is column aligned, CSV writes the rows, and JSON writes Source.

Errors:

ConfigError marks invalid input or configuration; ExitCode maps it to
exit status 2 and every other error to 1.
*/
package cli
