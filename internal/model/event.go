package model

// Event 活动记录（字段名与活动后端 JSON 保持一致）
type Event struct {
	ID               string         `json:"_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Tags             []string       `json:"tags"`
	Type             string         `json:"type,omitempty"`
	Date             string         `json:"date,omitempty"`
	OrganizationName string         `json:"organizationName,omitempty"`
	Location         *EventLocation `json:"location,omitempty"`
	SocialLinks      *SocialLinks   `json:"socialLinks,omitempty"`
}

// EventLocation 活动地点
type EventLocation struct {
	Type  string `json:"type,omitempty"` // online, offline, hybrid
	Venue string `json:"venue,omitempty"`
	Link  string `json:"link,omitempty"`
}

// SocialLinks 活动链接
type SocialLinks struct {
	Website  string `json:"website,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Website 返回官网链接（可能为空）
func (e Event) Website() string {
	if e.SocialLinks == nil {
		return ""
	}
	return e.SocialLinks.Website
}

// ScoredEvent 带相似度的活动副本
type ScoredEvent struct {
	Event
	SimilarityScore float64 `json:"similarity_score"`
}

// EventsResponse 活动后端 GET /api/events 的响应
type EventsResponse struct {
	Data struct {
		Events []Event `json:"events"`
	} `json:"data"`
}
