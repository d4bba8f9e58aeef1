package meetinghandler

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListInsightsQuery struct {
	Limit  int `form:"limit,default=100" binding:"gte=1,lte=1000"`
	Offset int `form:"offset,default=0"  binding:"gte=0"`
} // @name ListInsightsQuery

type RoomStatus struct {
	Room        string `json:"room"         example:"abc123"`
	Peers       int    `json:"peers"        example:"2"`
	HasProducer bool   `json:"has_producer"`
	Observers   int    `json:"observers"    example:"1"`
} // @name RoomStatus

type EmotionStatusResponse struct {
	AnalyzerConfigured bool         `json:"analyzer_configured"`
	Model              string       `json:"model,omitempty" example:"gpt-4o-mini"`
	Mode               string       `json:"mode"            example:"remote"`
	ActiveRooms        int          `json:"active_rooms"`
	Rooms              []RoomStatus `json:"rooms"`
} // @name EmotionStatusResponse
