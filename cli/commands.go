package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kbengine.dev/auth"
	"kbengine.dev/catalog"
	"kbengine.dev/common"
	"kbengine.dev/config"
	"kbengine.dev/index"
)

// loadConfig reads the engine configuration the same way cmd/kbd does,
// using the --config flag bound on RootCmd.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openCatalogDB opens a raw gorm connection against the configured
// Postgres DSN, grounded on db/postgres.go's gorm.Open(postgres.Open(...))
// call site — operator commands open their own short-lived connection
// rather than going through a long-running *catalog.GormStore pool.
func openCatalogDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Catalog.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connecting to catalog store: %w", err)
	}
	return db, nil
}

var initIndexCmd = &cobra.Command{
	Use:   "init-index",
	Short: "create the OpenSearch index backing the document chunk store",
	Long: `init-index creates C3's backing index with its content_vector
knn_vector mapping, if it does not already exist. Safe to run repeatedly;
it is a no-op once the index is present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := common.NewLogger("kbctl-init-index", common.LoggerConfig{})
		idx, err := index.New(index.Config{
			Addresses: cfg.Index.Addresses,
			Username:  cfg.Index.Username,
			Password:  cfg.Index.Password,
			IndexName: cfg.Index.IndexName,
		}, log)
		if err != nil {
			return err
		}
		if err := idx.EnsureIndex(cmd.Context(), cfg.Index.VectorDim); err != nil {
			return err
		}
		fmt.Printf("index %q ready\n", cfg.Index.IndexName)
		return nil
	},
}

var migrateAdminOwnerID string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "run relational schema migrations and legacy data repair",
	Long: `migrate runs GORM AutoMigrate for every C2 and C12 model, then
resolves spec section 9 design note 3: any DocumentVersion row left with
an empty owner (a legacy row from before owner_id was required) is
reassigned to --admin-owner-id rather than special-cased as nil
ownership in the permission engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openCatalogDB(cfg)
		if err != nil {
			return err
		}
		if err := catalog.AutoMigrate(db); err != nil {
			return fmt.Errorf("catalog automigrate: %w", err)
		}
		if err := auth.AutoMigrate(db); err != nil {
			return fmt.Errorf("auth automigrate: %w", err)
		}

		if migrateAdminOwnerID != "" {
			result := db.WithContext(cmd.Context()).
				Model(&catalog.DocumentVersion{}).
				Where("uploaded_by = ?", "").
				Update("uploaded_by", migrateAdminOwnerID)
			if result.Error != nil {
				return fmt.Errorf("reassigning orphaned legacy rows: %w", result.Error)
			}
			fmt.Printf("reassigned %d orphaned legacy version row(s) to %s\n", result.RowsAffected, migrateAdminOwnerID)
		}

		fmt.Println("migration complete")
		return nil
	},
}

var cleanupOrphansCmd = &cobra.Command{
	Use:   "cleanup-orphans",
	Short: "purge chunk and index state left by aborted pipeline runs",
	Long: `cleanup-orphans finds every Task in a terminal failed state and
removes the partial Chunk rows and index documents its target version may
have accumulated before failing, so a later retry starts from a clean
slate rather than mixing surviving fragments from the aborted attempt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openCatalogDB(cfg)
		if err != nil {
			return err
		}
		store := catalog.NewGormStore(db)
		log := common.NewLogger("kbctl-cleanup-orphans", common.LoggerConfig{})
		idx, err := index.New(index.Config{
			Addresses: cfg.Index.Addresses,
			Username:  cfg.Index.Username,
			Password:  cfg.Index.Password,
			IndexName: cfg.Index.IndexName,
		}, log)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		failed, err := store.ListTasks(ctx, catalog.TaskFailed)
		if err != nil {
			return err
		}

		cleaned := 0
		for _, t := range failed {
			if err := store.DeleteChunksForVersion(ctx, t.TargetVersionID); err != nil {
				log.WithError(err).WithField("version_id", t.TargetVersionID).Error("failed to delete orphaned chunks")
				continue
			}
			if err := idx.DeleteByVersion(ctx, t.TargetVersionID); err != nil {
				log.WithError(err).WithField("version_id", t.TargetVersionID).Error("failed to delete orphaned index documents")
				continue
			}
			cleaned++
		}
		fmt.Printf("cleaned orphaned state for %d of %d failed task(s)\n", cleaned, len(failed))
		return nil
	},
}

var reindexVersionCmd = &cobra.Command{
	Use:   "reindex-version <id>",
	Short: "rebuild every indexed chunk document for one document version",
	Args:  cobra.ExactArgs(1),
	Long: `reindex-version deletes and rebuilds every C3 document for the
given version id from its current C2 chunk rows, the same
delete-then-bulk-rebuild the permission engine's visibility-change path
uses, exposed here as a manual operator escape hatch (e.g. after an
index mapping change or a suspected drift between C2 and C3).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		versionID := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openCatalogDB(cfg)
		if err != nil {
			return err
		}
		store := catalog.NewGormStore(db)
		log := common.NewLogger("kbctl-reindex-version", common.LoggerConfig{})
		idx, err := index.New(index.Config{
			Addresses: cfg.Index.Addresses,
			Username:  cfg.Index.Username,
			Password:  cfg.Index.Password,
			IndexName: cfg.Index.IndexName,
		}, log)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		version, err := store.GetVersion(ctx, versionID)
		if err != nil {
			return newUserError("no such version: %s", versionID)
		}
		chunks, err := store.ListChunksForVersion(ctx, versionID)
		if err != nil {
			return err
		}

		if err := idx.DeleteByVersion(ctx, versionID); err != nil {
			return err
		}

		docs := make([]index.Document, len(chunks))
		for i, c := range chunks {
			docs[i] = index.Document{
				ChunkID:       c.ChunkID,
				VersionID:     c.VersionID,
				PageNumber:    c.PageNumber,
				Text:          c.Text,
				ContentVector: c.Vector,
				Metadata:      c.Metadata,
				UpdatedAt:     version.UpdatedAt.Format(time.RFC3339),
			}
		}
		if len(docs) > 0 {
			if err := idx.BulkIndex(ctx, docs); err != nil {
				return err
			}
		}
		fmt.Printf("reindexed %d chunk(s) for version %s\n", len(docs), versionID)
		return nil
	},
}

var rotateTokensOwnerID string
var rotateTokensName string
var rotateTokensTTL time.Duration

var rotateTokensCmd = &cobra.Command{
	Use:   "rotate-tokens",
	Short: "revoke an automation caller's active tool tokens and issue a fresh one",
	Long: `rotate-tokens revokes every active ToolToken owned by
--owner-id, then issues a single new one under --name with the given
--ttl. The new token's plaintext secret is printed once; C12 never
stores it, only its bcrypt hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rotateTokensOwnerID == "" {
			return newUserError("--owner-id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openCatalogDB(cfg)
		if err != nil {
			return err
		}
		authStore := auth.NewGormStore(db)
		tokens := auth.NewTokenService(cfg.Auth.SigningSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
		log := common.NewLogger("kbctl-rotate-tokens", common.LoggerConfig{})
		authCfg := auth.DefaultConfig()
		authCfg.BcryptCost = cfg.Auth.BcryptCost
		svc := auth.NewService(authStore, tokens, authCfg, log)

		ctx := cmd.Context()
		existing, err := svc.ListToolTokens(ctx, rotateTokensOwnerID)
		if err != nil {
			return err
		}
		revoked := 0
		for _, tok := range existing {
			if !tok.Active {
				continue
			}
			if err := svc.RevokeToolToken(ctx, tok.ID); err != nil {
				return fmt.Errorf("revoking tool token %s: %w", tok.ID, err)
			}
			revoked++
		}

		name := rotateTokensName
		if name == "" {
			name = "rotated-token"
		}
		secret, tok, err := svc.IssueToolToken(ctx, rotateTokensOwnerID, name, rotateTokensTTL)
		if err != nil {
			return err
		}
		fmt.Printf("revoked %d existing token(s)\n", revoked)
		fmt.Printf("issued tool token %s (%s): %s\n", tok.ID, tok.Name, secret)
		return nil
	},
}

func init() {
	rotateTokensCmd.Flags().StringVar(&rotateTokensOwnerID, "owner-id", "", "user id the tool token is issued to (required)")
	rotateTokensCmd.Flags().StringVar(&rotateTokensName, "name", "", "label for the newly issued tool token")
	rotateTokensCmd.Flags().DurationVar(&rotateTokensTTL, "ttl", 90*24*time.Hour, "lifetime of the newly issued tool token")

	migrateCmd.Flags().StringVar(&migrateAdminOwnerID, "admin-owner-id", "", "user id to reassign orphaned legacy version rows to")
}
