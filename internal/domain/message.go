package domain

import "time"

// Message 表示一封已被接收并存储的邮件。创建后不可修改。
type Message struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_messages_feed,priority:3"`
	AccountID    string    `json:"accountId" gorm:"type:varchar(36);index"`
	ToAddress    string    `json:"toAddress" gorm:"type:varchar(320);index:idx_messages_feed,priority:1;not null"`
	FromAddress  string    `json:"fromAddress" gorm:"type:varchar(320)"`
	Subject      string    `json:"subject" gorm:"type:varchar(998)"`
	Body         string    `json:"body" gorm:"type:text"`
	BodyType     string    `json:"bodyType" gorm:"type:varchar(32)"`
	DateSent     string    `json:"dateSent" gorm:"type:varchar(128)"` // 发件人声明的时间，仅供参考
	DateReceived time.Time `json:"dateReceived" gorm:"index:idx_messages_feed,priority:2;not null"`
}

// NewerThan 报告 m 在订阅源中是否排在 other 之前：
// 按 DateReceived 降序，时间相同时按 ID 降序。
func (m *Message) NewerThan(other *Message) bool {
	if !m.DateReceived.Equal(other.DateReceived) {
		return m.DateReceived.After(other.DateReceived)
	}
	return m.ID > other.ID
}
