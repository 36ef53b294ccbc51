package database

import (
	"context"
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bunny-plus/backend/internal/model"
)

//go:embed seed/cards.yaml
var seedFS embed.FS

// CatalogUpserter はカードカタログの投入に必要なインターフェース。
type CatalogUpserter interface {
	UpsertCatalog(ctx context.Context, cards []*model.Card) error
}

// seedCard はYAMLカタログファイルの1エントリ。
type seedCard struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Rarity      string `yaml:"rarity"`
	Attack      int    `yaml:"attack"`
	Defense     int    `yaml:"defense"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
}

// seedCatalog はYAMLカタログファイルのルート構造。
type seedCatalog struct {
	Cards []seedCard `yaml:"cards"`
}

// LoadCatalog はカードカタログをYAMLから読み込む。
// pathが空の場合は埋め込みのデフォルトカタログを使用する。
func LoadCatalog(path string) ([]*model.Card, error) {
	var data []byte
	var err error

	if path == "" {
		data, err = seedFS.ReadFile("seed/cards.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read card catalog: %w", err)
	}

	var catalog seedCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse card catalog: %w", err)
	}
	if len(catalog.Cards) == 0 {
		return nil, fmt.Errorf("card catalog is empty")
	}

	cards := make([]*model.Card, 0, len(catalog.Cards))
	seen := make(map[int]bool, len(catalog.Cards))
	for _, sc := range catalog.Cards {
		if sc.ID <= 0 {
			return nil, fmt.Errorf("invalid card id: %d", sc.ID)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("duplicate card id: %d", sc.ID)
		}
		seen[sc.ID] = true
		if sc.Name == "" {
			return nil, fmt.Errorf("card %d: name is required", sc.ID)
		}
		if !model.ValidRarity(model.Rarity(sc.Rarity)) {
			return nil, fmt.Errorf("card %d: unknown rarity %q", sc.ID, sc.Rarity)
		}
		cards = append(cards, &model.Card{
			ID:          sc.ID,
			Name:        sc.Name,
			Rarity:      model.Rarity(sc.Rarity),
			Attack:      sc.Attack,
			Defense:     sc.Defense,
			Description: sc.Description,
			ImageURL:    sc.ImageURL,
		})
	}

	return cards, nil
}

// SeedCards はカードカタログをデータベースに冪等に投入する。
func SeedCards(ctx context.Context, repo CatalogUpserter, path string) (int, error) {
	cards, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}
	if err := repo.UpsertCatalog(ctx, cards); err != nil {
		return 0, fmt.Errorf("failed to seed cards: %w", err)
	}
	return len(cards), nil
}
