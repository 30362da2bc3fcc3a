package model

// 额度功能名枚举
const (
	QuotaFeatureCampaignMessage = "campaign_message"
)

// QuotaUsage 每日额度计数，按 (instance, day, feature) 唯一
// 按天 key 隐式归零，不做显式清理
type QuotaUsage struct {
	BaseModel
	InstanceID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_quota_usages_key" json:"instance_id"`
	Day        string `gorm:"type:varchar(10);not null;uniqueIndex:idx_quota_usages_key" json:"day"` // 2006-01-02
	Feature    string `gorm:"type:varchar(32);not null;uniqueIndex:idx_quota_usages_key" json:"feature"`
	Used       int    `gorm:"not null;default:0" json:"used"`
}

// TableName 指定表名
func (QuotaUsage) TableName() string {
	return "quota_usages"
}
