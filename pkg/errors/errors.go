package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 认证相关错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidTenantID = Definition{Code: "INVALID_TENANT_ID", Message: "Invalid tenant ID format"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please retry later"}
)

// campaign 模块错误。
var (
	CampaignNotFound     = Definition{Code: "CAMPAIGN_NOT_FOUND", Message: "Campaign not found"}
	CampaignNotStartable = Definition{Code: "CAMPAIGN_NOT_STARTABLE", Message: "Campaign is not in a startable state"}
	CampaignNotPausable  = Definition{Code: "CAMPAIGN_NOT_PAUSABLE", Message: "Campaign is not running"}
	CampaignStartLocked  = Definition{Code: "CAMPAIGN_START_LOCKED", Message: "Campaign start already in progress"}
	LeadListEmpty        = Definition{Code: "LEAD_LIST_EMPTY", Message: "Campaign requires at least one lead"}
	MessageRequired      = Definition{Code: "MESSAGE_REQUIRED", Message: "Campaign requires a message or variations"}
	InstanceRequired     = Definition{Code: "INSTANCE_REQUIRED", Message: "Sending instance is required"}
)

// 额度模块错误。
var (
	QuotaExceeded = Definition{Code: "QUOTA_EXCEEDED", Message: "Daily send quota exceeded"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	Unauthorized.Code:         Unauthorized,
	TooManyRequests.Code:      TooManyRequests,
	InvalidTenantID.Code:      InvalidTenantID,
	CampaignNotFound.Code:     CampaignNotFound,
	CampaignNotStartable.Code: CampaignNotStartable,
	CampaignNotPausable.Code:  CampaignNotPausable,
	CampaignStartLocked.Code:  CampaignStartLocked,
	LeadListEmpty.Code:        LeadListEmpty,
	MessageRequired.Code:      MessageRequired,
	InstanceRequired.Code:     InstanceRequired,
	QuotaExceeded.Code:        QuotaExceeded,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
