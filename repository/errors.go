package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateUser 用户名或邮箱已存在
	ErrDuplicateUser = errors.New("username or email already exists")
	// ErrDuplicate 唯一键冲突（重复收藏、歌单中重复歌曲等）
	ErrDuplicate = errors.New("record already exists")
	// ErrNotFound 更新/删除的目标不存在
	ErrNotFound = errors.New("record not found")
)

const mysqlDuplicateEntry = 1062

// isDuplicateKey 判断是否唯一键冲突
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
