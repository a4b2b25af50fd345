package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

const maxEntitlementAttempts = 5

// errNoChange 由 mutate 返回，表示无需写回
var errNoChange = errors.New("no entitlement change")

// updateEntitlements 读取用户、调用 mutate 修改内存中的套餐快照，再以版本号条件写回。
// 版本冲突时重新读取并重试；mutate 可以读库但不能写库。
func updateEntitlements(ctx context.Context, users *repository.UserRepository, userID int64, mutate func(*model.User) error) (*model.User, bool, error) {
	for attempt := 0; attempt < maxEntitlementAttempts; attempt++ {
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, ErrUserNotFound
			}
			return nil, false, err
		}

		if err := mutate(user); err != nil {
			if errors.Is(err, errNoChange) {
				return user, false, nil
			}
			return nil, false, err
		}

		ok, err := users.SaveEntitlements(ctx, user)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return user, true, nil
		}
	}
	return nil, false, ErrConcurrentUpdate
}
