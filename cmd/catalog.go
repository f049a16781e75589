package cmd

import (
	"context"
	"fmt"

	"karaoke/cache"
	"karaoke/core/catalog"
	"karaoke/db"
	"karaoke/logger"
	"karaoke/repository"

	"github.com/spf13/cobra"
)

var catalogDryRun bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "曲库文件管理",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "导入 YAML/JSON 曲库文件",
	Long:  `按 catalog key 幂等导入曲库文件：已存在的歌曲会被更新，非法条目会被跳过。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		if catalogDryRun {
			valid := 0
			for i, e := range f.Songs {
				if _, err := e.Song(); err != nil {
					fmt.Printf("#%d %q: %v\n", i, e.Title, err)
					continue
				}
				valid++
			}
			fmt.Printf("%d/%d 条目有效\n", valid, len(f.Songs))
			return nil
		}

		gormDB, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()

		ctx := context.Background()
		res, err := catalog.NewImporter(repository.NewGormSongRepository(gormDB)).Import(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("导入完成: 新增 %d, 更新 %d, 跳过 %d\n", res.Inserted, res.Updated, res.Skipped)

		// 让运行中的服务丢弃旧的搜索缓存
		if client, err := db.ConnectRedis(cfg); err != nil {
			logger.Warn("[Catalog] redis unavailable, search cache not invalidated", logger.ErrorField(err))
		} else {
			defer db.CloseRedis()
			if err := cache.NewSongCache(client).Invalidate(ctx); err != nil {
				logger.Warn("[Catalog] cache invalidation failed", logger.ErrorField(err))
			}
		}
		return nil
	},
}

func init() {
	catalogImportCmd.Flags().BoolVar(&catalogDryRun, "dry-run", false, "只校验文件，不写数据库")
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
