package utils

import (
	"time"

	"Disparo/config"
)

// QuotaLocation 额度计数用的参考时区
// 加载失败时退回 UTC，保证 day key 始终可计算
func QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(config.Cfg.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayKey 返回指定时区下的日历日 key（2006-01-02）
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
