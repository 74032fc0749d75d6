// Package e2e provides end-to-end tests over a catalogue of generated photos and captions.
package e2e

import (
	"fmt"
	"strings"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

// Photo is one catalogue entry: a stable key, captions and the seed for its pixels.
type Photo struct {
	Key         string
	Filename    string
	Title       string
	Description string
	Tags        []string
	Seed        int
}

// QueryTestCase defines a text query and the photo key(s) that must appear in results.
type QueryTestCase struct {
	Query        string
	ExpectedKeys []string
	Description  string
}

// Corpus holds photos and query test cases for E2E tests.
type Corpus struct {
	Photos       []Photo
	TestCases    []QueryTestCase
	TotalPhotos  int
	TotalQueries int
}

// BuildCorpus returns a corpus of n photos. Each caption carries a signature phrase
// so queries can assert the right photo comes back.
func BuildCorpus(n int) *Corpus {
	photos := buildPhotos(n)
	cases := buildQueryTestCases(photos)
	return &Corpus{
		Photos:       photos,
		TestCases:    cases,
		TotalPhotos:  len(photos),
		TotalQueries: len(cases),
	}
}

var captions = []struct {
	title, description string
	tags               []string
}{
	{"Lighthouse on a rocky coast", "White lighthouse above crashing waves at dusk", []string{"coast", "sea"}},
	{"Golden gate bridge in fog", "Suspension bridge towers rising out of morning fog", []string{"city", "bridge"}},
	{"Red fox in snow", "Fox with a thick winter coat hunting in fresh snow", []string{"animal", "winter"}},
	{"Cherry blossom avenue", "Pink cherry blossom petals over a quiet park path", []string{"spring", "park"}},
	{"Desert sand dunes", "Wind ripples across orange sand dunes at sunrise", []string{"desert"}},
	{"Night market stalls", "Crowded night market with lanterns and street food", []string{"city", "food"}},
	{"Alpine lake reflection", "Snow peaks reflected in a still alpine lake", []string{"mountain", "lake"}},
	{"Espresso on a cafe table", "Small espresso cup with crema on a marble table", []string{"food", "cafe"}},
	{"Humpback whale breach", "Humpback whale breaching beside a tour boat", []string{"animal", "sea"}},
	{"Autumn maple forest", "Maple leaves turning crimson along a forest trail", []string{"autumn", "forest"}},
	{"Vintage red car", "Restored vintage convertible parked on cobblestones", []string{"car"}},
	{"Northern lights over cabin", "Green aurora ribbons above a wooden cabin", []string{"winter", "sky"}},
	{"Rice terraces", "Terraced rice paddies carved into green hillsides", []string{"farm"}},
	{"Old library reading room", "Wooden shelves and reading lamps in a historic library", []string{"interior"}},
	{"Surfer riding a barrel wave", "Surfer crouched inside a turquoise barrel wave", []string{"sport", "sea"}},
	{"Tabby cat on windowsill", "Sleepy tabby cat basking in afternoon sunlight", []string{"animal", "pet"}},
	{"Hot air balloons at dawn", "Dozens of hot air balloons drifting over valleys", []string{"sky"}},
	{"Bamboo grove path", "Tall bamboo stalks lining a narrow grove path", []string{"forest"}},
	{"Harbor with fishing boats", "Colourful fishing boats moored in a small harbor", []string{"coast", "boat"}},
	{"Thunderstorm over prairie", "Lightning bolt striking the prairie under storm clouds", []string{"weather"}},
	{"Sunflower field", "Endless sunflower field facing the summer sun", []string{"summer", "farm"}},
	{"Mountain goat on cliff", "Mountain goat balancing on a steep granite cliff", []string{"animal", "mountain"}},
	{"City skyline at night", "Glass skyscrapers lit up along the river at night", []string{"city"}},
	{"Waterfall in rainforest", "Tall waterfall plunging into a misty rainforest pool", []string{"forest", "water"}},
	{"Snowy village chapel", "Small chapel and chalets buried in deep snow", []string{"winter", "village"}},
	{"Flamingos in lagoon", "Flock of pink flamingos wading through a shallow lagoon", []string{"animal", "bird"}},
	{"Steam train crossing viaduct", "Steam locomotive crossing a stone viaduct", []string{"train"}},
	{"Tulip fields and windmill", "Striped tulip fields in front of a windmill", []string{"spring", "farm"}},
	{"Glacier ice cave", "Blue light filtering through a glacier ice cave", []string{"winter", "ice"}},
	{"Street musician with violin", "Street musician playing violin under an archway", []string{"people", "music"}},
	{"Coral reef diver", "Scuba diver gliding above a bright coral reef", []string{"sea", "sport"}},
	{"Lavender rows in Provence", "Purple lavender rows stretching to the horizon", []string{"summer", "farm"}},
	{"Owl in hollow tree", "Barn owl peering out of a hollow oak tree", []string{"animal", "bird"}},
	{"Canyon river bend", "River bend curving through red canyon walls", []string{"desert", "water"}},
	{"Bakery shop window", "Fresh croissants and baguettes in a bakery window", []string{"food"}},
	{"Kayaks on turquoise lake", "Yellow kayaks floating on a turquoise glacial lake", []string{"lake", "sport"}},
	{"Penguin colony", "Emperor penguin colony huddled on sea ice", []string{"animal", "ice"}},
	{"Volcano crater lake", "Acidic green lake inside a volcano crater", []string{"mountain", "lake"}},
	{"Lantern festival", "Paper lanterns released into the night sky", []string{"festival", "sky"}},
	{"Windswept lone tree", "Lone tree bent by wind on a barren hill", []string{"landscape"}},
}

func buildPhotos(n int) []Photo {
	out := make([]Photo, 0, n)
	for i := 0; i < n; i++ {
		c := captions[i%len(captions)]
		title := c.title
		if i >= len(captions) {
			// Repeats keep their captions but get distinct titles and pixels.
			title = fmt.Sprintf("%s (%d)", c.title, i+1)
		}
		key := fmt.Sprintf("photo-%03d", i+1)
		out = append(out, Photo{
			Key:         key,
			Filename:    key + ".png",
			Title:       title,
			Description: c.description,
			Tags:        c.tags,
			Seed:        i + 1,
		})
	}
	return out
}

func buildQueryTestCases(photos []Photo) []QueryTestCase {
	phrases := []string{
		"lighthouse", "suspension bridge", "red fox", "cherry blossom", "sand dunes",
		"night market", "alpine lake", "espresso", "humpback whale", "maple leaves",
		"vintage convertible", "aurora", "rice paddies", "historic library", "barrel wave",
		"tabby cat", "hot air balloons", "bamboo", "fishing boats", "lightning",
		"sunflower", "mountain goat", "skyscrapers", "waterfall", "chapel",
		"flamingos", "steam locomotive", "windmill", "ice cave", "violin",
	}
	var cases []QueryTestCase
	for _, p := range phrases {
		var keys []string
		for _, ph := range photos {
			if containsPhrase(ph, p) {
				keys = append(keys, ph.Key)
			}
		}
		if len(keys) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:        p,
			ExpectedKeys: keys,
			Description:  fmt.Sprintf("query %q should return %s", p, keys[0]),
		})
	}
	return cases
}

// containsPhrase reports a case-insensitive match in the title or description.
func containsPhrase(p Photo, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(p.Title), phrase) ||
		strings.Contains(strings.ToLower(p.Description), phrase)
}

// ToImageInputs converts the corpus to create inputs with generated PNG pixels.
func (c *Corpus) ToImageInputs() ([]models.ImageInput, error) {
	out := make([]models.ImageInput, len(c.Photos))
	for i, p := range c.Photos {
		data, err := EncodeImage("png", p.Seed)
		if err != nil {
			return nil, err
		}
		out[i] = models.ImageInput{
			Filename:    p.Filename,
			Data:        data,
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
		}
	}
	return out, nil
}
