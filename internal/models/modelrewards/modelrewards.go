// Package modelrewards provides types describing per-user reward state.
package modelrewards

type (
	StreakData struct {
		LastTimestamp int64  `json:"last_timestamp"`
		Streak        uint64 `json:"streak"`
	}
	User struct {
		Handle       string     `json:"handle"`
		Principal    string     `json:"principal"`
		Daily        StreakData `json:"daily"`
		Work         StreakData `json:"work"`
		TotalRewards uint64     `json:"total_rewards"`
	}
)
