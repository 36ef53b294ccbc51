package model

import "time"

// Rarity はカードのレアリティ階級を表す。R < SR < SSR の順に希少になる。
type Rarity string

const (
	// RarityCommon は最も排出率の高い階級（75%）。
	RarityCommon Rarity = "R"
	// RarityRare は中間の階級（20%）。
	RarityRare Rarity = "SR"
	// RarityUltraRare は最も希少な階級（5%）。
	RarityUltraRare Rarity = "SSR"
)

// ValidRarity は既知のレアリティかどうかを返す。
func ValidRarity(r Rarity) bool {
	switch r {
	case RarityCommon, RarityRare, RarityUltraRare:
		return true
	}
	return false
}

// Card はガチャの排出対象となるカタログエントリを表す。
// カタログはseedで投入される読み取り専用の参照データ。
type Card struct {
	ID          int
	Name        string
	Rarity      Rarity
	Attack      int
	Defense     int
	Description string
	ImageURL    string
}

// UserCard はカードの所有レコードを表す。
// 追記専用で、同一カードの重複所有を許す（1回の排出につき1行）。
type UserCard struct {
	ID         int64
	DiscordID  string
	CardID     int
	AcquiredAt time.Time
}

// RarityCounts はレアリティ別の所有枚数を表す。
type RarityCounts struct {
	Common    int `json:"common"`
	Rare      int `json:"rare"`
	UltraRare int `json:"ultra_rare"`
}

// OnlineUser はプレゼンス配信1回分のユーザースナップショットを表す。
// 配信tickごとに再計算される派生データであり、永続化しない。
type OnlineUser struct {
	DiscordID string       `json:"discord_id"`
	Username  string       `json:"username"`
	Avatar    string       `json:"avatar"`
	Currency  int          `json:"currency"`
	Cards     RarityCounts `json:"cards"`
}
