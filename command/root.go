// Package command 提供工作流的命令行: 查看已注册的工作流, 执行超时轮询
//
//	manager := workflow.NewWorkflowManager()
//	manager.AddWorkflowDefinition(...)
//	if err := command.NewRootCommand(manager).Execute(); err != nil {
//	    os.Exit(1)
//	}
package command

import (
	"github.com/blingmoon/state-workflow/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// LoaderFactory 根据数据库创建超时轮询使用的 ContextLoader
type LoaderFactory func(db *gorm.DB, repo workflow.InstanceRepo) (workflow.ContextLoader, error)

type Option func(*root)

// WithLoaderFactory 默认使用 workflow.DocumentStore
func WithLoaderFactory(factory LoaderFactory) Option {
	return func(r *root) {
		if factory != nil {
			r.loaderFactory = factory
		}
	}
}

type root struct {
	manager       *workflow.WorkflowManager
	viper         *viper.Viper
	loaderFactory LoaderFactory
}

func NewRootCommand(manager *workflow.WorkflowManager, opts ...Option) *cobra.Command {
	r := &root{
		manager:       manager,
		viper:         newViper(),
		loaderFactory: documentLoader,
	}
	for _, opt := range opts {
		opt(r)
	}

	cmd := &cobra.Command{
		Use:           "state-workflow",
		Short:         "State workflow tools",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	cmd.PersistentFlags().String("sqlite-dsn", "", "Sqlite DSN of the workflow database")
	cmd.PersistentFlags().String("lock-backend", "", "Lock backend: local or redis")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address for the redis lock backend")
	cmd.PersistentFlags().Int("redis-db", 0, "Redis database for the redis lock backend")
	cmd.PersistentFlags().Duration("lock-ttl", 0, "Max time a context lock is held")
	bindFlag(r.viper, cmd, "sqlite_dsn", "sqlite-dsn")
	bindFlag(r.viper, cmd, "lock_backend", "lock-backend")
	bindFlag(r.viper, cmd, "redis_addr", "redis-addr")
	bindFlag(r.viper, cmd, "redis_db", "redis-db")
	bindFlag(r.viper, cmd, "lock_ttl", "lock-ttl")

	cmd.AddCommand(newDebugCommand(r), newCheckTimeLimitCommand(r))
	return cmd
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key string, flag string) {
	_ = v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
}

func (r *root) loadConfig(cmd *cobra.Command) (*Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return LoadConfig(r.viper, configFile)
}

func documentLoader(db *gorm.DB, repo workflow.InstanceRepo) (workflow.ContextLoader, error) {
	store := workflow.NewDocumentStore(db, repo)
	if err := store.AutoMigrate(); err != nil {
		return nil, err
	}
	return store, nil
}
