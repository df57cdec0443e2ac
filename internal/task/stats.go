package task

type Stats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
	// CompletionRate is a percentage in [0, 100].
	CompletionRate float64 `json:"completion_rate"`
}

func Summarize(active, completed []Task) Stats {
	st := Stats{
		Active:    len(active),
		Completed: len(completed),
		Total:     len(active) + len(completed),
	}
	if st.Total > 0 {
		st.CompletionRate = float64(st.Completed) / float64(st.Total) * 100
	}
	return st
}
