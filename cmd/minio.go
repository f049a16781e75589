package cmd

import (
	"context"
	"fmt"
	"sort"

	"karaoke/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理媒体存储桶中的文件，支持列出文件、查看统计信息、按类型汇总占用、删除目录等功能。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMediaStore(cfg)
		if err != nil {
			return fmt.Errorf("创建MinIO客户端失败: %w", err)
		}
		ctx := context.Background()

		if minioDelete {
			if minioPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := store.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Printf("已删除 %d 个对象 (前缀: %s)\n", n, minioPrefix)
			return nil
		}

		objects, stats, err := store.List(ctx, minioPrefix, minioRecursive || minioStats)
		if err != nil {
			return err
		}

		if minioStats {
			fmt.Printf("\n存储桶: %s\n", store.Bucket())
			fmt.Printf("对象数量: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}

			usage := storage.Usage(objects)
			kinds := make([]string, 0, len(usage))
			for k := range usage {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			fmt.Println("\n按类型统计:")
			for _, k := range kinds {
				fmt.Printf("  %-10s %s\n", k, storage.FormatSize(usage[k]))
			}
			return nil
		}

		for _, obj := range objects {
			fmt.Printf("%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04"))
		}
		fmt.Printf("\n共 %d 个对象, %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出子目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有文件
  karaoke minio -r

  # 只看上传的音频
  karaoke minio -r -p "audio/"

  # 显示存储桶统计信息
  karaoke minio -s

  # 删除目录及其下的所有文件
  karaoke minio -d -p "thumbnails/"`
}
