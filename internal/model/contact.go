package model

// 漏斗阶段约定：NOVO/LEAD 为冷阶段，可被自动触达；
// 其余阶段视为有人工会话在进行，群发必须绕开
const (
	ContactStageNew       = "NOVO"
	ContactStageLead      = "LEAD"
	ContactStageContacted = "CONTACTED"
)

// Contact CRM 联系人，按 (tenant, number) 唯一
type Contact struct {
	BaseModel
	TenantID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_contacts_tenant_number" json:"tenant_id"`
	Name       string `gorm:"type:varchar(128)" json:"name"`
	Number     string `gorm:"type:varchar(32);not null;uniqueIndex:idx_contacts_tenant_number" json:"number"`
	Stage      string `gorm:"type:varchar(32);not null;default:'NOVO'" json:"stage"`
	InstanceID string `gorm:"type:varchar(64)" json:"instance_id"`
}

// TableName 指定表名
func (Contact) TableName() string {
	return "contacts"
}
