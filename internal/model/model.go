package model

import "time"

// AnalysisRequest asks for a comparison against one guest AI level.
type AnalysisRequest struct {
	GuestAIDifficulty string `json:"guest_ai_difficulty"`
}

// AlgorithmStats is one algorithm's block of the comparison report.
type AlgorithmStats struct {
	WinRateAsTiger      float64 `json:"win_rate_as_tiger"`
	WinRateAsGoat       float64 `json:"win_rate_as_goat"`
	AvgGameLength       float64 `json:"avg_game_length"`
	DecisionTimeMS      float64 `json:"decision_time_ms"`
	TrainingTimeMinutes float64 `json:"training_time_minutes"`
	StatesExplored      int64   `json:"states_explored"`
	AdaptivenessScore   float64 `json:"adaptiveness_score"`
}

// AlgorithmComparison pairs the learned agent with the tree search.
type AlgorithmComparison struct {
	DoubleQLearning AlgorithmStats `json:"double_q_learning"`
	Minimax         AlgorithmStats `json:"minimax"`
}

// ComparisonResult wraps one comparison.
type ComparisonResult struct {
	AlgorithmComparison AlgorithmComparison `json:"algorithm_comparison"`
}

// AnalysisResponse is the result of a comparison run. QLearningWins,
// GuestAIWins and Draws always add up to NumGames.
type AnalysisResponse struct {
	GuestAIDifficulty string             `json:"guest_ai_difficulty"`
	NumGames          int                `json:"num_games"`
	QLearningWins     int                `json:"q_learning_wins"`
	GuestAIWins       int                `json:"guest_ai_wins"`
	Draws             int                `json:"draws"`
	Results           []ComparisonResult `json:"results"`
}

// QTableStatistics summarizes every combined Q-value of a policy.
type QTableStatistics struct {
	MaxQValue float64 `json:"max_q_value"`
	MinQValue float64 `json:"min_q_value"`
	AvgQValue float64 `json:"avg_q_value"`
}

// QTableResponse summarizes one side's learned policy.
type QTableResponse struct {
	Player                string                        `json:"player"`
	QTableSize            int                           `json:"q_table_size"`
	TotalStateActionPairs int                           `json:"total_state_action_pairs"`
	Episodes              int                           `json:"episodes"`
	SampleEntries         map[string]map[string]float64 `json:"sample_entries"`
	Statistics            QTableStatistics              `json:"statistics"`
}

// TrainingRequest starts a background training job.
type TrainingRequest struct {
	Player   string `json:"player"`
	Opponent string `json:"opponent"`
	Episodes int    `json:"episodes"`
}

// TrainingStatus describes a side's most recent training job.
type TrainingStatus struct {
	Player    string    `json:"player"`
	State     string    `json:"state"`
	Opponent  string    `json:"opponent"`
	Episode   int       `json:"episode"`
	Episodes  int       `json:"episodes"`
	Epsilon   float64   `json:"epsilon"`
	States    int       `json:"states"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// PolicyInfo describes one side's saved policy.
type PolicyInfo struct {
	Player    string    `json:"player"`
	Episodes  int       `json:"episodes"`
	SizeBytes int       `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// PolicyListResponse lists the saved policies.
type PolicyListResponse struct {
	Policies []PolicyInfo `json:"policies"`
}
