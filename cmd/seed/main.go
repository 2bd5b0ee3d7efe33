package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/mall-next/internal/authz"
	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/constants"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/repository"
	"github.com/mall-next/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type seedAdmin struct {
	Username string
	Password string
	Roles    []string
}

type seedUser struct {
	Nickname   string
	Phone      string
	OpenID     string
	InviteCode string
	InviterOf  string // 邀请人手机号
	Vip        bool
}

var seedAdmins = []seedAdmin{
	{Username: "support", Password: "support123", Roles: []string{constants.AdminRoleSupport}},
	{Username: "finance", Password: "finance123", Roles: []string{constants.AdminRoleFinance}},
}

var seedUsers = []seedUser{
	{Nickname: "推广员小李", Phone: "13800000001", OpenID: "seed-openid-promoter", InviteCode: "PROMO01"},
	{Nickname: "普通买家", Phone: "13800000002", OpenID: "seed-openid-buyer", InviterOf: "13800000001"},
	{Nickname: "会员买家", Phone: "13800000003", OpenID: "seed-openid-vip", InviterOf: "13800000001", Vip: true},
}

var seedProducts = []models.Product{
	{Name: "有机大米 5kg", Price: models.MustMoney("59.90"), OriginalPrice: models.MustMoney("79.00"), VipPrice: models.MustMoney("52.00"), WholesalePrice: models.MustMoney("49.00"), WholesaleThreshold: 10, Stock: 500},
	{Name: "冷榨花生油 1.8L", Price: models.MustMoney("45.00"), OriginalPrice: models.MustMoney("58.00"), VipPrice: models.MustMoney("40.00"), Stock: 200},
	{Name: "土鸡蛋 30 枚", Price: models.MustMoney("36.80"), WholesalePrice: models.MustMoney("30.00"), WholesaleThreshold: 5, Stock: 80},
	{Name: "限量礼盒", Price: models.MustMoney("199.00"), Stock: 3},
}

// seed 写入演示数据，需先执行 migrate -cmd up
func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions("mall-seed"))
	defer logger.Sync()
	log := logger.S()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, false); err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	defer models.Close()

	if err := seedAdminAccounts(log); err != nil {
		log.Fatalf("初始化管理员失败: %v", err)
	}
	users, err := seedUserAccounts(log)
	if err != nil {
		log.Fatalf("初始化用户失败: %v", err)
	}
	if err := seedCatalog(log); err != nil {
		log.Fatalf("初始化商品失败: %v", err)
	}

	userAuth := service.NewUserAuthService(cfg, repository.NewUserRepository(models.DB))
	fmt.Println("用户测试 Token:")
	for _, user := range users {
		token, expiresAt, err := userAuth.GenerateUserJWT(user)
		if err != nil {
			log.Fatalf("生成用户 Token 失败: %v", err)
		}
		fmt.Printf("  %s (id=%d, 过期 %s)\n    %s\n", user.Nickname, user.ID, expiresAt.Format(time.RFC3339), token)
	}
}

func seedAdminAccounts(log *zap.SugaredLogger) error {
	if _, err := models.EnsureAdmin(models.DB, "admin", "", true); err != nil {
		return err
	}
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		return err
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		return err
	}
	for _, item := range seedAdmins {
		admin, err := models.EnsureAdmin(models.DB, item.Username, item.Password, false)
		if err != nil {
			return err
		}
		if _, err := authzService.AssignAdminRoles(admin.ID, item.Roles); err != nil {
			return err
		}
		log.Infow("seed_admin_ready", "username", admin.Username, "roles", item.Roles)
	}
	return nil
}

func seedUserAccounts(log *zap.SugaredLogger) ([]*models.User, error) {
	byPhone := make(map[string]*models.User, len(seedUsers))
	result := make([]*models.User, 0, len(seedUsers))
	for _, item := range seedUsers {
		var user models.User
		err := models.DB.Where("phone = ?", item.Phone).First(&user).Error
		switch {
		case err == nil:
			log.Infow("seed_user_exists", "phone", item.Phone, "user_id", user.ID)
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Nickname:   item.Nickname,
				Phone:      item.Phone,
				OpenID:     item.OpenID,
				InviteCode: item.InviteCode,
			}
			if inviter, ok := byPhone[item.InviterOf]; ok {
				user.InviterID = &inviter.ID
			}
			if item.Vip {
				expireAt := time.Now().AddDate(1, 0, 0)
				user.IsVip = true
				user.VipExpireAt = &expireAt
			}
			if err := models.DB.Create(&user).Error; err != nil {
				return nil, err
			}
			if err := seedDefaultAddress(&user); err != nil {
				return nil, err
			}
			log.Infow("seed_user_created", "phone", item.Phone, "user_id", user.ID)
		default:
			return nil, err
		}
		u := user
		byPhone[item.Phone] = &u
		result = append(result, &u)
	}
	return result, nil
}

func seedDefaultAddress(user *models.User) error {
	address := models.Address{
		UserID:    user.ID,
		Consignee: user.Nickname,
		Phone:     user.Phone,
		Province:  "浙江省",
		City:      "杭州市",
		District:  "西湖区",
		Detail:    fmt.Sprintf("文三路 %d 号", 100+user.ID),
		IsDefault: true,
	}
	return models.DB.Create(&address).Error
}

func seedCatalog(log *zap.SugaredLogger) error {
	for _, item := range seedProducts {
		var existing models.Product
		err := models.DB.Where("name = ?", item.Name).First(&existing).Error
		if err == nil {
			log.Infow("seed_product_exists", "name", item.Name, "product_id", existing.ID)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		product := item
		product.Status = constants.ProductStatusOnSale
		if err := models.DB.Create(&product).Error; err != nil {
			return err
		}
		log.Infow("seed_product_created", "name", product.Name, "product_id", product.ID, "stock", product.Stock)
	}
	return nil
}
