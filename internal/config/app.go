package config

type AppConfig struct {
	Store       StoreConfig
	API         APIConfig
	ObjectStore ObjectStoreConfig
	Log         LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	storeCfg, err := LoadStore()
	if err != nil {
		return AppConfig{}, err
	}
	apiCfg, err := LoadAPI()
	if err != nil {
		return AppConfig{}, err
	}
	objCfg, err := LoadObjectStore()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Store:       storeCfg,
		API:         apiCfg,
		ObjectStore: objCfg,
		Log:         logCfg,
	}, nil
}
