package relay

import "github.com/caarlos0/env/v11"

// Config comes entirely from the environment. The relay is the only place
// provider credentials live; clients never see them.
type Config struct {
	Port         int    `env:"PORT"           envDefault:"8080"`
	NewsAPIKey   string `env:"NEWS_API_KEY,required,notEmpty"`
	NewsBaseURL  string `env:"NEWS_BASE_URL"  envDefault:"https://newsapi.org/v2"`
	NewsCountry  string `env:"NEWS_COUNTRY"   envDefault:"us"`
	NewsPageSize int    `env:"NEWS_PAGE_SIZE" envDefault:"30"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL"   envDefault:"gpt-4o-mini"`

	// FallbackImageURL is tried when an article's own image cannot be
	// served; empty skips straight to the embedded placeholder.
	FallbackImageURL string `env:"FALLBACK_IMAGE_URL" envDefault:"https://picsum.photos/800/450"`

	// UpstreamRPM caps outbound news requests so one chatty client cannot
	// burn the provider's daily quota.
	UpstreamRPM   int `env:"UPSTREAM_RPM"   envDefault:"20"`
	UpstreamBurst int `env:"UPSTREAM_BURST" envDefault:"5"`
}

func LoadConfig() (Config, error) {
	return env.ParseAs[Config]()
}
