package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vfs-go/internal/app"
	"vfs-go/internal/config"
	"vfs-go/internal/vfs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config at the default location.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a VFSApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Publish", "List").
func newApp(operation string) (*app.VFSApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewVFSApp(context.Background(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var projectName string

var rootCmd = &cobra.Command{
	Use:          "vfs",
	Short:        "Versioned content repository with staged publishing",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Export:    %s (encrypted: %v)\n", cfg.Export.Type, cfg.Export.Encrypt)
		fmt.Printf("Backups:   %v (max versions: %d)\n", cfg.Publish.BackupEnabled, cfg.Publish.MaxVersions)
		for _, p := range cfg.ExportPoints {
			fmt.Printf("Export point: %s -> %s\n", p.URI, p.Destination)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage export encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the export encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if !bytes.Equal(passphrase, confirm) {
			return fmt.Errorf("passphrases do not match")
		}
		if len(passphrase) == 0 {
			return fmt.Errorf("passphrase must not be empty")
		}

		if err := app.InitKeys(cfg, string(passphrase)); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return p, nil
}

// database command
var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage the metadata database",
}

var databaseMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage offline projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an offline project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, _ := cmd.Flags().GetStringSlice("path")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp("CreateProject")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.CreateProject(cmd.Context(), args[0], description, paths)
		if err != nil {
			return err
		}
		fmt.Printf("Created project %s (id %d) for %s\n", p.Name, p.ID, strings.Join(p.ResourcePaths, ", "))
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListProjects")
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.Projects(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range projects {
			fmt.Printf("%3d  %-20s  %-14s  %s\n", p.ID, p.Name, p.Type, strings.Join(p.ResourcePaths, ", "))
		}
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MakeFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.MakeFolder(cmd.Context(), projectName, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created %s\n", res.RootPath)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put PATH LOCALFILE",
	Short: "Create or update a file from a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Put")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Put(cmd.Context(), projectName, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s (%d bytes, %s)\n", res.RootPath, res.Length, res.State())
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Remove")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Remove(cmd.Context(), projectName, args[0])
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv SOURCE DESTINATION",
	Short: "Move a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Move")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Move(cmd.Context(), projectName, args[0], args[1])
	},
}

var lnCmd = &cobra.Command{
	Use:   "ln SOURCE PATH",
	Short: "Create a sibling sharing the content of SOURCE",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Link")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Link(cmd.Context(), projectName, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Linked %s (%d siblings)\n", res.RootPath, res.SiblingCount)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		online, _ := cmd.Flags().GetBool("online")

		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		folder := "/"
		if len(args) > 0 {
			folder = args[0]
		}
		children, err := a.List(cmd.Context(), projectName, folder, online)
		if err != nil {
			return err
		}
		for _, r := range children {
			fmt.Printf("%-9s  %8d  %s  %s\n", r.State(), r.Length, r.DateLastModified.Format("2006-01-02 15:04:05"), r.Name())
		}
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Print the content of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		online, _ := cmd.Flags().GetBool("online")

		a, err := newApp("Cat")
		if err != nil {
			return err
		}
		defer a.Close()

		content, err := a.Cat(cmd.Context(), projectName, args[0], online)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(content)
		return err
	},
}

var propsetCmd = &cobra.Command{
	Use:   "propset PATH NAME [VALUE]",
	Short: "Set or, without VALUE, delete a property",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		shared, _ := cmd.Flags().GetBool("shared")

		a, err := newApp("SetProperty")
		if err != nil {
			return err
		}
		defer a.Close()

		value := ""
		if len(args) == 3 {
			value = args[2]
		}
		return a.SetProperty(cmd.Context(), projectName, args[0], args[1], value, shared)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the changes of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		direct, _ := cmd.Flags().GetString("direct")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		a, err := newApp("Publish")
		if err != nil {
			return err
		}
		defer a.Close()

		changed, err := a.Publish(cmd.Context(), projectName, direct, noBackup, vfs.NewWriterReport(os.Stdout))
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		if len(changed) == 0 {
			fmt.Println("Nothing to publish.")
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history PUBLISH_ID",
	Short: "List the resources of one publish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		publishID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid publish id %q: %w", args[0], err)
		}

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(cmd.Context(), publishID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No resources recorded for this publish.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-9s  tag %-4d  %s\n", e.State, e.TagID, e.RootPath)
		}
		return nil
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions PATH",
	Short: "List the backed up versions of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Versions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Versions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No backup versions.")
			return nil
		}
		for _, v := range versions {
			fmt.Printf("v%-3d  tag %-4d  %s  %-20s  %d bytes\n",
				v.VersionID, v.TagID, v.PublishDate.Format("2006-01-02 15:04:05"), v.UserLastModifiedName, v.Resource.Length)
		}
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Inspect relations between resources",
}

var linksBrokenCmd = &cobra.Command{
	Use:   "broken",
	Short: "List relations whose target is missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		online, _ := cmd.Flags().GetBool("online")

		a, err := newApp("BrokenLinks")
		if err != nil {
			return err
		}
		defer a.Close()

		links, err := a.BrokenLinks(cmd.Context(), projectName, online)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			fmt.Println("No broken links.")
			return nil
		}
		for _, l := range links {
			fmt.Printf("%-15s  %s -> %s\n", l.Type, l.SourcePath, l.TargetPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectName, "project", "p", "Offline", "Offline project to work in")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)

	databaseCmd.AddCommand(databaseMigrateCmd)

	projectCmd.AddCommand(projectCreateCmd)
	projectCreateCmd.Flags().StringSlice("path", []string{"/"}, "Resource path the project may publish (repeatable)")
	projectCreateCmd.Flags().String("description", "", "Project description")
	projectCmd.AddCommand(projectListCmd)

	linksCmd.AddCommand(linksBrokenCmd)
	linksBrokenCmd.Flags().Bool("online", false, "Check the online tree")

	lsCmd.Flags().Bool("online", false, "List the online tree")
	catCmd.Flags().Bool("online", false, "Read from the online tree")
	propsetCmd.Flags().Bool("shared", false, "Store the value on the shared resource record, visible to all siblings")
	publishCmd.Flags().String("direct", "", "Publish only this resource and its descendants")
	publishCmd.Flags().Bool("no-backup", false, "Skip writing backup versions")

	rootCmd.AddCommand(configCmd, databaseCmd, projectCmd)
	rootCmd.AddCommand(mkdirCmd, putCmd, rmCmd, mvCmd, lnCmd, lsCmd, catCmd, propsetCmd)
	rootCmd.AddCommand(publishCmd, historyCmd, versionsCmd, linksCmd)
}
