package req

type TicksQuery struct {
	Since int64 `form:"since" binding:"min=0"`
}

type HistoryQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
	Size int `form:"size" binding:"omitempty,min=1,max=200"`
}
