package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Crawler struct {
		BaseUrl           string
		CatalogUrl        string
		Workers           int
		MinLikes          int
		RequestTimeoutSec int
		CourtesyDelayMs   int
		RequestsPerSecond int
		BurstLimit        int
		UserAgent         string
		CookieFile        string
	}

	Paths struct {
		OutputDir  string
		LinksFile  string
		ReadmeDir  string
		MetaPrefix string
		MergedFile string
	}

	Mysql struct {
		Enabled               bool
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	KafkaProducer struct {
		TopicModel string
	}

	Kafka struct {
		Enabled  bool
		Brokers  []string
		Producer KafkaProducer
	}
)

type Config struct {
	App     App
	Crawler Crawler
	Paths   Paths
	Mysql   Mysql
	Kafka   Kafka
}
