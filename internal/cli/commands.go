package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/record"
)

// errNotFound reports a key with no entity.
var errNotFound = errors.New("not found")

// withSession runs fn against the configured store and reports its error.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(*session) error) error {
	s, err := openSession(opts, cmd)
	defer s.close()
	if err != nil {
		return s.formatter.Fail(err)
	}
	if err := fn(s); err != nil {
		return s.formatter.Fail(err)
	}
	return nil
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the store, upgrading it if needed",
		Long: `Open the configured store at the configured version.

If the store is older than the configured version, its collections are
migrated to the configured schema first: undeclared collections are
dropped with their data and missing ones are created empty.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				conn, err := s.store.Manager().Open(cmd.Context()).Wait()
				if err != nil {
					return err
				}
				defer conn.Close()

				return s.formatter.Success(openResult{
					Store:       conn.Name(),
					Version:     conn.Version(),
					Connection:  conn.ID(),
					Collections: conn.CollectionNames(),
				})
			})
		},
	}
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schema",
		Short:         "Print the configured schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return formatter.Fail(err)
			}

			desc := cfg.Schema()
			collections := make(map[string]string, len(desc))
			for _, name := range desc.Names() {
				collections[name] = desc[name].KeyPath
			}
			return formatter.Success(schemaResult{
				Store:       cfg.Store,
				Version:     cfg.Version,
				Fingerprint: desc.Fingerprint(),
				Collections: collections,
				text:        desc.String(),
			})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <collection> <json>...",
		Short: "Add records tagged Added",
		Long: `Add one or more JSON records to a collection. Each is stored tagged
Added, overwriting any record with the same key. With several records the
command fails as a whole if any record fails.

Example:
  changestore add Project '{"ProjectFileNo":"5517C","Title":"Bridge"}'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				collection := args[0]
				values := make([]record.Record, 0, len(args)-1)
				for _, arg := range args[1:] {
					r, err := parseRecord(arg)
					if err != nil {
						return err
					}
					values = append(values, r)
				}

				if len(values) == 1 {
					e, err := s.store.AddItem(cmd.Context(), collection, values[0]).Await(cmd.Context())
					if err != nil {
						return err
					}
					return s.formatter.Success(entityList{e})
				}

				entities, err := s.store.AddItems(cmd.Context(), collection, values).Await(cmd.Context())
				if err != nil {
					return err
				}
				return s.formatter.Success(entityList(entities))
			})
		},
	}
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Original string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <collection> <json>",
		Short: "Update a record, keeping its original value",
		Long: `Store a record tagged Updated together with the value it replaces.

The original value is given with --original, or as an "originalValue"
field of the record itself. A key that does not exist yet is created.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				r, err := parseRecord(args[1])
				if err != nil {
					return err
				}

				var u changes.Update
				if opts.Original != "" {
					orig, err := parseRecord(opts.Original)
					if err != nil {
						return err
					}
					u = changes.Update{
						Value:         r.Without(changes.FieldChangeType, changes.FieldOriginalValue),
						OriginalValue: orig,
					}
				} else if u, err = changes.UpdateOf(r); err != nil {
					return argError(fmt.Errorf("%w: pass --original or an originalValue field", err))
				}

				e, err := s.store.UpdateItem(cmd.Context(), args[0], u).Await(cmd.Context())
				if err != nil {
					return err
				}
				return s.formatter.Success(entityList{e})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Original, "original", "", "JSON of the value being replaced")
	return cmd
}

// KeyOptions holds flags for commands taking keys.
type KeyOptions struct {
	*RootOptions
	NumericKey bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "get <collection> <key>",
		Short:         "Print the entity stored under a key",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				key, err := parseKey(args[1], opts.NumericKey)
				if err != nil {
					return err
				}

				e, err := s.store.GetItem(cmd.Context(), args[0], key).Await(cmd.Context())
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("%s %q: %w", args[0], args[1], errNotFound)
				}
				return s.formatter.Success(entityList{*e})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.NumericKey, "numeric-key", false, "interpret keys as numbers")
	return cmd
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	ChangeType string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "Print every entity of a collection",
		Long: `Print every entity of a collection in insertion order.

With --change-type, print only entities last written with that change
type, such as the pending local edits a sync client must push.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				if opts.ChangeType == "" {
					all, err := s.store.GetAllData(cmd.Context(), args[0]).Await(cmd.Context())
					if err != nil {
						return err
					}
					return s.formatter.Success(entityList(all))
				}

				kind, err := changes.ParseChangeType(opts.ChangeType)
				if err != nil {
					return argError(err)
				}
				filtered, err := s.store.Changes(cmd.Context(), args[0], kind).Await(cmd.Context())
				if err != nil {
					return err
				}
				return s.formatter.Success(entityList(filtered))
			})
		},
	}

	cmd.Flags().StringVar(&opts.ChangeType, "change-type", "", "only entities with this change type (Added|Updated|Deleted)")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <collection> <key>...",
		Short: "Delete entities by key",
		Long: `Delete one or more entities by key. Deleting a key that does not
exist succeeds.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				keys := make([]any, 0, len(args)-1)
				for _, arg := range args[1:] {
					k, err := parseKey(arg, opts.NumericKey)
					if err != nil {
						return err
					}
					keys = append(keys, k)
				}

				deleted, err := s.store.DeleteItems(cmd.Context(), args[0], keys).Await(cmd.Context())
				if err != nil {
					return err
				}
				return s.formatter.Success(keyList(deleted))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.NumericKey, "numeric-key", false, "interpret keys as numbers")
	return cmd
}

// NewDropStoreCommand creates the drop-store command.
func NewDropStoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "drop-store",
		Short:         "Delete the store and all its data",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				if err := s.store.DeleteStore(cmd.Context()); err != nil {
					return err
				}
				return s.formatter.Success(message{Message: fmt.Sprintf("store %s deleted", s.config.Store)})
			})
		},
	}
}
