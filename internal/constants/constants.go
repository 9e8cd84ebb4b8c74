package constants

const (
	ProjectRootAnchorFile = "go.mod"
	AppLogFile            = "app.log"
	TestLogFile           = "test.log"
)

// Кошельки
const (
	AddressPrefix           = "PVX_" // префикс адреса кошелька
	AddressHashLength       = 40     // длина hex-части адреса (160 бит)
	MinPassphraseLength     = 8      // минимальная длина пароля по умолчанию
	WalletCreateAttempts    = 3      // попыток создать кошелек при коллизии адреса
	MaxMemoLength           = 256    // максимальная длина комментария к переводу, в байтах
	DefaultHistoryLimit     = 50     // записей истории переводов по умолчанию
	MaxHistoryLimit         = 500    // максимум записей истории за один запрос
	DefaultRecentLimit      = 10     // последних переводов по умолчанию
	DefaultWalletsPageLimit = 20     // кошельков на страницу по умолчанию
	MaxWalletsPageLimit     = 100    // максимум кошельков на страницу
)

// Леджер (Kafka)
const (
	KafkaLedgerTopic              = "pvx-transfers"
	KafkaLedgerGroup              = "pvxLedgerGroup"
	KafkaLedgerAutocommitInterval = 5
)

// Postgresql
const (
	QueryDealine      = 5 // время в секундах, после которого прерывать контекст выполнения Postgresql запроса
	QueryRetries      = 3 // количество повторов запроса при временных ошибках
	UniqueViolation   = "23505"
	SerializationFail = "40001"
	DeadlockDetected  = "40P01"
)

const ContextTimeout = 10              // таймаут операций usecase в секундах
const MigrationDir = "migration"       // папка с миграциями относительно корня проекта
const StorageTypePostgres = "postgres" // тип хранилища кошельков
const StorageTypeMemory = "memory"
