package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "hf-crawler",
			Version: "0.0.1",
		},

		// Crawler
		Crawler: Crawler{
			BaseUrl:           "https://huggingface.co",
			CatalogUrl:        "https://huggingface.co/models",
			Workers:           2,
			MinLikes:          3,
			RequestTimeoutSec: 10,
			CourtesyDelayMs:   2500,
			RequestsPerSecond: 5,
			BurstLimit:        10,
			UserAgent:         "hf-crawler/0.0.1",
			CookieFile:        "",
		},

		// Paths
		Paths: Paths{
			OutputDir:  "output",
			LinksFile:  "links.txt",
			ReadmeDir:  "readmes",
			MetaPrefix: "meta",
			MergedFile: "meta_merged.csv",
		},

		// Mysql
		Mysql: Mysql{
			Enabled:               false,
			Host:                  "127.0.0.1",
			Port:                  "3306",
			Username:              "root",
			Password:              "root",
			Database:              "hf_crawler",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// Kafka
		Kafka: Kafka{
			Enabled: false,
			Brokers: []string{"127.0.0.1:9092"},
			Producer: KafkaProducer{
				TopicModel: "hf-crawler.models",
			},
		},
	}, nil
}
